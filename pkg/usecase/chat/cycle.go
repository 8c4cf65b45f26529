package chat

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/seeker/pkg/memory"
	"github.com/m-mizutani/seeker/pkg/model"
	"github.com/m-mizutani/seeker/pkg/tool"
)

const (
	stepLimitMessage   = "I reached the step limit. Shall I summarize what I found?"
	checkpointTemplate = "I have performed %d searches. Do you want me to continue searching for more information, or should I summarize what I have found so far?"

	// inputs shorter than this are read as follow-ups to the current topic
	shortInputWords = 5

	logPreviewLength   = 100
	layerPreviewLength = 200
)

var continuationCues = []string{"summarize", "continue"}

// processRequest runs one request cycle for a user input. Every failure
// ends the cycle with an assistant message; the session stays usable.
func (s *Session) processRequest(input string) {
	s.log("user", "Input: "+input)
	s.appendTurn(model.RoleUser, "", input)
	s.emit(model.EventChat, model.ChatData{Role: model.RoleUser, Content: input})

	if !s.hasTopic {
		s.topic = input
		s.hasTopic = true
	}
	query := s.retrievalQuery(input)

	s.setState(StatePerceiving)
	s.layer(model.LayerPerception, model.LayerActive, nil)
	perception, err := s.perceive(input)
	if err != nil {
		s.fail(model.LayerPerception, "perception", err)
		return
	}
	s.log("perception", fmt.Sprintf("Intent: %s, Tool hint: %s", perception.Intent, perception.ToolHint))
	s.layer(model.LayerPerception, model.LayerDone, perception)

	if perception.WantsStop() {
		query = fmt.Sprintf("Summarize everything found about %s and provide the final answer.", s.topic)
	}

	searches := 0
	for step := 0; step < s.cfg.maxSteps; step++ {
		s.setState(StateRetrieving)
		s.layer(model.LayerMemory, model.LayerActive, nil)
		memories, err := s.retrieve(query)
		if err != nil {
			s.fail(model.LayerMemory, "memory", err)
			return
		}
		s.log("memory", fmt.Sprintf("Retrieved %d relevant memories", len(memories)))
		s.layer(model.LayerMemory, model.LayerDone, memories)

		s.setState(StateDeciding)
		s.layer(model.LayerDecision, model.LayerActive, nil)
		plan, err := s.plan(perception, memories)
		if err != nil {
			s.fail(model.LayerDecision, "decision", err)
			return
		}
		s.log("plan", "Plan: "+plan)
		s.layer(model.LayerDecision, model.LayerDone, map[string]string{"plan": plan})

		if answer, ok := tool.FinalAnswer(plan); ok {
			s.setState(StateAnswering)
			s.log("agent", "Answer: "+answer)
			s.reply(answer)
			return
		}

		s.setState(StateActing)
		s.layer(model.LayerAction, model.LayerActive, nil)
		result, err := s.execute(plan)
		if err != nil {
			s.fail(model.LayerAction, "tool", err)
			return
		}
		s.log("tool", fmt.Sprintf("%s -> %s...", result.ToolName, preview(result.Result, logPreviewLength)))

		if err := s.remember(query, result); err != nil {
			s.fail(model.LayerAction, "memory", err)
			return
		}
		s.appendTurn(model.RoleTool, result.ToolName, result.Result)

		switch result.Class {
		case tool.ClassSearch:
			s.emit(model.EventResources, model.ResourcesData{Type: "search", Data: result.Result})
			searches++
		case tool.ClassNavigation:
			if url, ok := strings.CutPrefix(result.Result, tool.OpenURLPrefix); ok {
				s.emit(model.EventOpenURL, model.OpenURLData{URL: strings.TrimSpace(url)})
			}
		}

		s.layer(model.LayerAction, model.LayerDone, map[string]string{
			"tool":   result.ToolName,
			"result": preview(result.Result, layerPreviewLength),
		})

		if searches >= s.cfg.checkpoint {
			s.log("agent", "Checkpoint reached.")
			s.reply(fmt.Sprintf(checkpointTemplate, searches))
			return
		}

		query = fmt.Sprintf("Original: %s\nPrevious Tool Output: %s\nWhat next?", input, result.Result)
	}

	s.log("agent", fmt.Sprintf("Step limit %d reached", s.cfg.maxSteps))
	s.reply(stepLimitMessage)
}

// retrievalQuery biases short or follow-up inputs toward the current topic.
// Any other input becomes the new topic.
func (s *Session) retrievalQuery(input string) string {
	lower := strings.ToLower(input)
	followUp := len(strings.Fields(input)) < shortInputWords ||
		slices.ContainsFunc(continuationCues, func(cue string) bool {
			return strings.Contains(lower, cue)
		})

	if followUp {
		return fmt.Sprintf("%s related to %s", input, s.topic)
	}
	s.topic = input
	return input
}

func (s *Session) callContext() (context.Context, context.CancelFunc) {
	if s.cfg.callTimeout <= 0 {
		return s.ctx, func() {}
	}
	return context.WithTimeout(s.ctx, s.cfg.callTimeout)
}

func (s *Session) perceive(input string) (*model.Perception, error) {
	ctx, cancel := s.callContext()
	defer cancel()

	perception, err := s.perceiver.Perceive(ctx, input)
	if err != nil {
		return nil, goerr.Wrap(err, "perception failed")
	}
	if perception == nil {
		perception = &model.Perception{}
	}
	return perception, nil
}

func (s *Session) retrieve(query string) ([]*model.MemoryRecord, error) {
	ctx, cancel := s.callContext()
	defer cancel()

	records, err := s.memory.Retrieve(ctx, query, s.cfg.topK, memory.WithSession(s.id))
	if err != nil {
		return nil, goerr.Wrap(err, "memory retrieval failed")
	}
	if records == nil {
		records = []*model.MemoryRecord{}
	}
	return records, nil
}

func (s *Session) plan(perception *model.Perception, memories []*model.MemoryRecord) (string, error) {
	ctx, cancel := s.callContext()
	defer cancel()

	plan, err := s.planner.Plan(ctx, PlanInput{
		Perception: perception,
		Memories:   memories,
		Tools:      s.catalog.Describe(),
		Guidance:   s.catalog.Prompts(),
		History:    slices.Clone(s.history),
	})
	if err != nil {
		return "", goerr.Wrap(err, "planning failed")
	}
	return strings.TrimSpace(plan), nil
}

func (s *Session) execute(plan string) (*tool.Result, error) {
	ctx, cancel := s.callContext()
	defer cancel()
	return s.tools.Execute(ctx, s.catalog, plan)
}

func (s *Session) remember(query string, result *tool.Result) error {
	ctx, cancel := s.callContext()
	defer cancel()

	_, err := s.memory.Add(ctx, &model.MemoryRecord{
		Text:        fmt.Sprintf("Tool %s output: %s", result.ToolName, result.Result),
		Kind:        model.KindToolOutput,
		ToolName:    result.ToolName,
		SourceQuery: query,
		Tags:        []string{result.ToolName},
		SessionID:   s.id,
	})
	if err != nil {
		return goerr.Wrap(err, "failed to store tool output", goerr.V("tool", result.ToolName))
	}
	return nil
}

// fail closes the active layer with the error and ends the cycle with an
// error reply.
func (s *Session) fail(layer, stage string, err error) {
	s.layer(layer, model.LayerDone, map[string]string{"error": err.Error()})
	s.logger.Warn("request cycle failed", "stage", stage, "error", err)
	s.log("error", fmt.Sprintf("%s failed: %v", stage, err))
	s.reply(fmt.Sprintf("I encountered an error: %v", err))
}

func preview(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
