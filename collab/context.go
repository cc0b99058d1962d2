// Package collab implements collaborative relocalisation: a shared store of per-agent trajectories
// and a background worker that searches for the relative pose between every pair of agents.
package collab

import (
	"sort"
	"sync"

	"github.com/pkg/errors"
	"github.com/samber/lo"

	"go.viam.com/collabslam/slam"
	"go.viam.com/collabslam/spatialmath"
)

// ErrUnknownAgent is returned for operations on an agent that was never added.
var ErrUnknownAgent = errors.New("unknown agent")

type agentEntry struct {
	state       *slam.State
	relocaliser slam.Relocaliser
	trajectory  []spatialmath.Pose
}

// Context is the state shared between the agents and the collaborative worker. All access goes
// through a single mutex that is only held while copying in or out.
type Context struct {
	mu     sync.Mutex
	agents map[string]*agentEntry
}

var _ slam.Context = (*Context)(nil)

// NewContext returns an empty context.
func NewContext() *Context {
	return &Context{agents: map[string]*agentEntry{}}
}

// AddAgent registers an agent with its SLAM state and relocaliser.
func (c *Context) AddAgent(id string, state *slam.State, relocaliser slam.Relocaliser) error {
	if id == "" {
		return errors.New("agent id cannot be empty")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.agents[id]; ok {
		return errors.Errorf("agent %q already added", id)
	}
	c.agents[id] = &agentEntry{state: state, relocaliser: relocaliser}
	return nil
}

func (c *Context) agent(id string) (*agentEntry, error) {
	entry, ok := c.agents[id]
	if !ok {
		return nil, errors.Wrapf(ErrUnknownAgent, "%q", id)
	}
	return entry, nil
}

// SLAMState returns the SLAM state of an agent.
func (c *Context) SLAMState(id string) (*slam.State, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, err := c.agent(id)
	if err != nil {
		return nil, err
	}
	return entry.state, nil
}

// Relocaliser returns the relocaliser of an agent.
func (c *Context) Relocaliser(id string) (slam.Relocaliser, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, err := c.agent(id)
	if err != nil {
		return nil, err
	}
	return entry.relocaliser, nil
}

// AppendPose appends a pose to an agent's trajectory.
func (c *Context) AppendPose(id string, pose spatialmath.Pose) error {
	if pose == nil || !spatialmath.PoseIsValid(pose) {
		return errors.Errorf("invalid pose for agent %q", id)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, err := c.agent(id)
	if err != nil {
		return err
	}
	entry.trajectory = append(entry.trajectory, pose)
	return nil
}

// Trajectory returns a copy of an agent's trajectory.
func (c *Context) Trajectory(id string) ([]spatialmath.Pose, error) {
	return c.TrajectoryFrom(id, 0)
}

// TrajectoryFrom returns a copy of the poses of an agent's trajectory from index `start` on.
// Trajectories only grow, so the result always continues any earlier read ending at `start`.
func (c *Context) TrajectoryFrom(id string, start int) ([]spatialmath.Pose, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, err := c.agent(id)
	if err != nil {
		return nil, err
	}
	if start < 0 || start > len(entry.trajectory) {
		return nil, errors.Errorf("start %d out of range for trajectory of length %d", start, len(entry.trajectory))
	}
	out := make([]spatialmath.Pose, len(entry.trajectory)-start)
	copy(out, entry.trajectory[start:])
	return out, nil
}

// TrajectoryLen returns the length of an agent's trajectory, or 0 for an unknown agent.
func (c *Context) TrajectoryLen(id string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if entry, ok := c.agents[id]; ok {
		return len(entry.trajectory)
	}
	return 0
}

// AgentIDs returns the ids of all agents in order.
func (c *Context) AgentIDs() []string {
	c.mu.Lock()
	ids := lo.Keys(c.agents)
	c.mu.Unlock()
	sort.Strings(ids)
	return ids
}
