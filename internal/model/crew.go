// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures for conversations, messages,
// agents and crews.
package model

import (
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// AGENT TYPE
// =============================================================================

// Agent is a reusable behavioral preset that can be assigned to crew tasks.
// Agents are purely local; crews reference them by identifier, so deleting
// an agent leaves a weak reference that readers must degrade gracefully on.
type Agent struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	Role     string   `json:"role"`
	Goal     string   `json:"goal"`
	Template string   `json:"template"`
	Model    string   `json:"model"`
	Tools    []string `json:"tools"`
}

// NewAgent creates an agent with a generated ID.
func NewAgent(name, role, goal, template string) *Agent {
	return &Agent{
		ID:       uuid.NewString(),
		Name:     name,
		Role:     role,
		Goal:     goal,
		Template: template,
	}
}

// HasTool reports whether the agent carries the named tool.
func (a *Agent) HasTool(name string) bool {
	for _, t := range a.Tools {
		if t == name {
			return true
		}
	}
	return false
}

// AddTool adds a tool to the agent's set. Duplicates are ignored.
func (a *Agent) AddTool(name string) {
	if !a.HasTool(name) {
		a.Tools = append(a.Tools, name)
	}
}

// =============================================================================
// CREW STATUS
// =============================================================================

// CrewStatus represents the execution state of a crew run.
type CrewStatus string

const (
	// CrewIdle indicates the crew has never been run since creation.
	CrewIdle CrewStatus = "idle"

	// CrewRunning indicates a run is in flight. Entered optimistically
	// before the backend call returns.
	CrewRunning CrewStatus = "running"

	// CrewCompleted indicates the last run finished successfully.
	CrewCompleted CrewStatus = "completed"

	// CrewFailed indicates the last run failed.
	CrewFailed CrewStatus = "failed"
)

// String returns the string representation of the status.
func (s CrewStatus) String() string {
	return string(s)
}

// IsTerminal reports whether the status ends a run.
func (s CrewStatus) IsTerminal() bool {
	return s == CrewCompleted || s == CrewFailed
}

// CanTransition reports whether moving to the given status is valid.
// Valid transitions: idle -> running, running -> completed/failed, and
// terminal -> running for a re-run. A crew never jumps from idle straight
// to a terminal state.
func (s CrewStatus) CanTransition(to CrewStatus) bool {
	switch s {
	case CrewIdle:
		return to == CrewRunning
	case CrewRunning:
		return to == CrewCompleted || to == CrewFailed
	case CrewCompleted, CrewFailed:
		return to == CrewRunning
	default:
		return false
	}
}

// =============================================================================
// CREW PROCESS
// =============================================================================

// CrewProcess is the task-ordering discipline a crew runs under.
type CrewProcess string

const (
	ProcessSequential   CrewProcess = "sequential"
	ProcessHierarchical CrewProcess = "hierarchical"
)

// Valid reports whether the process is a known discipline.
func (p CrewProcess) Valid() bool {
	return p == ProcessSequential || p == ProcessHierarchical
}

// =============================================================================
// CREW TYPE
// =============================================================================

// Crew is a named, ordered group of agents plus tasks. Each crew corresponds
// 1:1 to a server-side execution context; ID holds the backend-assigned
// identifier once creation succeeds.
type Crew struct {
	ID       string      `json:"id"`
	Name     string      `json:"name"`
	AgentIDs []string    `json:"agent_ids"`
	Tasks    []*CrewTask `json:"tasks"`
	Process  CrewProcess `json:"process"`
	Status   CrewStatus  `json:"status"`

	// Populated only when Status reaches completed.
	Result      string        `json:"result,omitempty"`
	CompletedAt time.Time     `json:"completed_at,omitzero"`
	Duration    time.Duration `json:"duration,omitempty"`
}

// NewCrew creates an idle crew with a locally generated placeholder ID.
// The backend identifier overwrites it on successful creation.
func NewCrew(name string, process CrewProcess) *Crew {
	return &Crew{
		ID:      uuid.NewString(),
		Name:    name,
		Process: process,
		Status:  CrewIdle,
	}
}

// Clone creates a deep copy of the crew.
func (c *Crew) Clone() *Crew {
	clone := *c
	clone.AgentIDs = append([]string(nil), c.AgentIDs...)
	clone.Tasks = make([]*CrewTask, len(c.Tasks))
	for i, task := range c.Tasks {
		taskCopy := *task
		clone.Tasks[i] = &taskCopy
	}
	return &clone
}

// AgentIndex returns the position of the agent in the crew's member list,
// or -1 if the agent is not a member.
func (c *Crew) AgentIndex(agentID string) int {
	for i, id := range c.AgentIDs {
		if id == agentID {
			return i
		}
	}
	return -1
}

// =============================================================================
// CREW TASK
// =============================================================================

// TaskStatus represents the state of a single crew task.
type TaskStatus string

const (
	TaskPending   TaskStatus = "pending"
	TaskCompleted TaskStatus = "completed"
)

// CrewTask is one unit of work within a crew, assigned to one agent.
// AgentID must reference a crew member at creation time; it is not
// re-validated afterward.
type CrewTask struct {
	ID             string     `json:"id"`
	Description    string     `json:"description"`
	AgentID        string     `json:"agent_id"`
	ExpectedOutput string     `json:"expected_output"`
	Status         TaskStatus `json:"status"`
	Result         string     `json:"result,omitempty"`
}

// NewCrewTask creates a pending task with a generated ID.
func NewCrewTask(description, agentID, expectedOutput string) *CrewTask {
	return &CrewTask{
		ID:             uuid.NewString(),
		Description:    description,
		AgentID:        agentID,
		ExpectedOutput: expectedOutput,
		Status:         TaskPending,
	}
}
