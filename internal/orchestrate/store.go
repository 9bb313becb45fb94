// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package orchestrate owns agent and crew state: the local agent presets,
// the crew list with its execution lifecycle, and the template/tool
// vocabularies offered by the backend.
//
// Agent CRUD is purely local. Crew lifecycle is not: each crew corresponds
// 1:1 to a server-side execution context, identified by the identifier the
// backend assigns at creation. Status transitions enter running
// optimistically before the run call returns, and every post-call mutation
// re-resolves its crew by identifier.
package orchestrate

import (
	"context"
	"fmt"
	"time"

	"github.com/jeranaias/lexos-tui/internal/api"
	"github.com/jeranaias/lexos-tui/internal/model"
	"github.com/jeranaias/lexos-tui/internal/store"
)

// StoreName is the snapshot name for orchestration state.
const StoreName = "orchestration"

// UnknownAgentName is shown when a crew references a deleted agent.
const UnknownAgentName = "Unknown Agent"

// Seed vocabularies, used until a template fetch succeeds. They mirror the
// backend's built-in presets so the agent form works offline.
var (
	defaultTemplates = []string{"researcher", "analyst", "writer", "coder", "planner"}
	defaultTools     = []string{"web_search", "calculator", "document_reader"}
)

// ValidationError reports a local precondition failure, before any network
// call is made.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// =============================================================================
// STATE
// =============================================================================

// State is the orchestration store's full state. Snapshots handed out by
// Read are immutable: mutators replace a changed crew or agent with a
// copy instead of writing through its pointer.
type State struct {
	Agents    []*model.Agent `json:"agents"`
	Crews     []*model.Crew  `json:"crews"`
	Templates []string       `json:"templates"`
	Tools     []string       `json:"tools"`

	// LastError is transient, not persisted.
	LastError string `json:"-"`
}

func (st State) agentByID(id string) *model.Agent {
	for _, a := range st.Agents {
		if a.ID == id {
			return a
		}
	}
	return nil
}

func (st State) crewByID(id string) *model.Crew {
	for _, c := range st.Crews {
		if c.ID == id {
			return c
		}
	}
	return nil
}

// withCrew returns a state in which the targeted crew is replaced by a
// mutated deep copy, leaving earlier snapshots untouched. Unknown
// identifiers return the state unchanged.
func (st State) withCrew(id string, mutate func(crew *model.Crew)) State {
	for i, c := range st.Crews {
		if c.ID == id {
			crews := make([]*model.Crew, len(st.Crews))
			copy(crews, st.Crews)
			clone := c.Clone()
			mutate(clone)
			crews[i] = clone
			st.Crews = crews
			return st
		}
	}
	return st
}

// =============================================================================
// BACKEND DEPENDENCY
// =============================================================================

// Backend is the slice of the backend client the orchestration store needs.
// Satisfied by *api.Client.
type Backend interface {
	CreateCrew(ctx context.Context, req api.CreateCrewRequest) (*api.CreateCrewResponse, error)
	RunCrew(ctx context.Context, crewID string) (*api.RunCrewResponse, error)
	CrewStatus(ctx context.Context, crewID string) (*api.CrewStatusResponse, error)
	Templates(ctx context.Context) (*api.TemplatesResponse, error)
}

// =============================================================================
// STORE
// =============================================================================

// Store is the agent and crew orchestration state machine.
type Store struct {
	state   *store.Store[State]
	backend Backend
}

func defaults() State {
	return State{
		Templates: defaultTemplates,
		Tools:     defaultTools,
	}
}

// Open rehydrates orchestration state from the given directory.
func Open(dir string, backend Backend) *Store {
	return &Store{
		state:   store.Open(StoreName, dir, defaults()),
		backend: backend,
	}
}

// NewInMemory creates an orchestration store with no persistence, for tests.
func NewInMemory(backend Backend) *Store {
	return &Store{
		state:   store.New(defaults()),
		backend: backend,
	}
}

// Read returns the current state.
func (s *Store) Read() State {
	return s.state.Read()
}

// Subscribe registers a listener for state changes.
func (s *Store) Subscribe(fn store.Listener[State]) func() {
	return s.state.Subscribe(fn)
}

// =============================================================================
// AGENT CRUD
// =============================================================================

// CreateAgent adds an agent to the local list and returns its identifier.
// Purely local, never fails.
func (s *Store) CreateAgent(agent *model.Agent) string {
	s.state.Update(func(st State) State {
		st.Agents = append(st.Agents, agent)
		return st
	})
	return agent.ID
}

// UpdateAgent replaces the agent with the same identifier. Unknown
// identifiers are a silent no-op.
func (s *Store) UpdateAgent(agent *model.Agent) {
	s.state.Update(func(st State) State {
		for i, a := range st.Agents {
			if a.ID == agent.ID {
				agents := make([]*model.Agent, len(st.Agents))
				copy(agents, st.Agents)
				agents[i] = agent
				st.Agents = agents
				break
			}
		}
		return st
	})
}

// DeleteAgent removes the agent from the local list. Crews referencing the
// agent keep their dangling reference; readers degrade via AgentName.
func (s *Store) DeleteAgent(id string) {
	s.state.Update(func(st State) State {
		agents := make([]*model.Agent, 0, len(st.Agents))
		for _, a := range st.Agents {
			if a.ID != id {
				agents = append(agents, a)
			}
		}
		st.Agents = agents
		return st
	})
}

// AgentName resolves an agent identifier to its display name, degrading to
// a fixed placeholder for dangling references.
func (s *Store) AgentName(id string) string {
	if a := s.state.Read().agentByID(id); a != nil {
		return a.Name
	}
	return UnknownAgentName
}

// =============================================================================
// CREW LIFECYCLE
// =============================================================================

// CrewDraft is the local input to CreateCrew: agent references by
// identifier and tasks assigned by agent identifier. The draft is
// translated into the backend's positional contract at submission.
type CrewDraft struct {
	Name     string
	AgentIDs []string
	Tasks    []CrewTaskDraft
	Process  model.CrewProcess
}

// CrewTaskDraft is one task in a crew draft.
type CrewTaskDraft struct {
	Description    string
	AgentID        string
	ExpectedOutput string
}

// CreateCrew builds a crew from the draft, registers it with the backend
// and appends it to the crew list with the backend-assigned identifier.
// On failure the draft is discarded entirely; no partial crew is retained.
func (s *Store) CreateCrew(ctx context.Context, draft CrewDraft) (string, error) {
	crew := model.NewCrew(draft.Name, draft.Process)
	crew.AgentIDs = append([]string(nil), draft.AgentIDs...)

	st := s.state.Read()
	templates := make([]string, 0, len(draft.AgentIDs))
	for _, agentID := range draft.AgentIDs {
		agent := st.agentByID(agentID)
		if agent == nil {
			return "", &ValidationError{Message: fmt.Sprintf("crew references unknown agent %s", agentID)}
		}
		templates = append(templates, agent.Template)
	}

	taskSpecs := make([]api.CrewTaskSpec, 0, len(draft.Tasks))
	for _, task := range draft.Tasks {
		idx := crew.AgentIndex(task.AgentID)
		if idx < 0 {
			return "", &ValidationError{Message: fmt.Sprintf("task %q assigned to agent outside the crew", task.Description)}
		}
		crew.Tasks = append(crew.Tasks, model.NewCrewTask(task.Description, task.AgentID, task.ExpectedOutput))
		taskSpecs = append(taskSpecs, api.CrewTaskSpec{
			Description:    task.Description,
			AgentIndex:     idx,
			ExpectedOutput: task.ExpectedOutput,
		})
	}

	resp, err := s.backend.CreateCrew(ctx, api.CreateCrewRequest{
		CrewName:       draft.Name,
		AgentTemplates: templates,
		Tasks:          taskSpecs,
		ProcessType:    string(draft.Process),
	})
	if err != nil {
		s.setError(err)
		return "", err
	}

	// The backend identifier replaces the local placeholder exactly once,
	// before the crew becomes visible in the list.
	crew.ID = resp.CrewID
	s.state.Update(func(st State) State {
		st.Crews = append(st.Crews, crew)
		st.LastError = ""
		return st
	})
	return crew.ID, nil
}

// RunCrew executes a crew. The status enters running before the network
// call; on success the result, completion time and duration are recorded
// atomically with the completed transition, on failure only the status
// flips to failed and prior results are left untouched.
func (s *Store) RunCrew(ctx context.Context, crewID string) error {
	var started bool
	s.state.Update(func(st State) State {
		crew := st.crewByID(crewID)
		if crew == nil || !crew.Status.CanTransition(model.CrewRunning) {
			return st
		}
		started = true
		return st.withCrew(crewID, func(crew *model.Crew) {
			crew.Status = model.CrewRunning
		})
	})
	if !started {
		return &ValidationError{Message: fmt.Sprintf("crew %s cannot be run", crewID)}
	}

	resp, err := s.backend.RunCrew(ctx, crewID)
	if err != nil {
		s.state.Update(func(st State) State {
			st.LastError = err.Error()
			return st.withCrew(crewID, func(crew *model.Crew) {
				if crew.Status == model.CrewRunning {
					crew.Status = model.CrewFailed
				}
			})
		})
		return err
	}

	s.state.Update(func(st State) State {
		st.LastError = ""
		return st.withCrew(crewID, func(crew *model.Crew) {
			if crew.Status != model.CrewRunning {
				return
			}
			crew.Status = model.CrewCompleted
			crew.Result = resp.Result
			crew.CompletedAt = time.Now()
			crew.Duration = time.Duration(resp.Duration * float64(time.Second))
			for _, task := range crew.Tasks {
				task.Status = model.TaskCompleted
			}
		})
	})
	return nil
}

// DeleteCrew removes the crew from the local list. The server-side context
// is left to expire on its own.
func (s *Store) DeleteCrew(id string) {
	s.state.Update(func(st State) State {
		crews := make([]*model.Crew, 0, len(st.Crews))
		for _, c := range st.Crews {
			if c.ID != id {
				crews = append(crews, c)
			}
		}
		st.Crews = crews
		return st
	})
}

// CrewStatus fetches the backend's view of a crew's execution context.
// Passthrough; local state is not mutated.
func (s *Store) CrewStatus(ctx context.Context, crewID string) (*api.CrewStatusResponse, error) {
	return s.backend.CrewStatus(ctx, crewID)
}

// =============================================================================
// VOCABULARIES
// =============================================================================

// FetchTemplates refreshes the template and tool vocabularies from the
// backend, overwriting the previous values wholesale. On failure the seed
// vocabularies (or the last successful fetch) remain in place.
func (s *Store) FetchTemplates(ctx context.Context) error {
	resp, err := s.backend.Templates(ctx)
	if err != nil {
		s.setError(err)
		return err
	}
	s.state.Update(func(st State) State {
		st.Templates = resp.AgentTemplates
		st.Tools = resp.Tools
		st.LastError = ""
		return st
	})
	return nil
}

func (s *Store) setError(err error) {
	s.state.Update(func(st State) State {
		st.LastError = err.Error()
		return st
	})
}
