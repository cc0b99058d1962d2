package collab

import (
	"fmt"

	"go.viam.com/collabslam/spatialmath"
)

// Candidate is a hypothesis for the transform taking poses in AgentB's frame to AgentA's frame.
type Candidate struct {
	AgentA     string
	AgentB     string
	Pose       spatialmath.Pose
	Confidence float64
	// Generation orders candidates by creation. Later candidates have larger generations.
	Generation uint64
}

// Reversed returns the same hypothesis expressed from AgentB's point of view.
func (c Candidate) Reversed() Candidate {
	c.AgentA, c.AgentB = c.AgentB, c.AgentA
	c.Pose = spatialmath.PoseInverse(c.Pose)
	return c
}

func (c Candidate) String() string {
	pt := c.Pose.Point()
	return fmt.Sprintf("%s<-%s (%.1f, %.1f, %.1f) conf=%.3f", c.AgentA, c.AgentB, pt.X, pt.Y, pt.Z, c.Confidence)
}

// agentPair is an unordered pair of agents, stored with a < b.
type agentPair struct {
	a, b string
}

func newAgentPair(a, b string) agentPair {
	if b < a {
		a, b = b, a
	}
	return agentPair{a, b}
}
