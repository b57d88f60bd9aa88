package toolserver

import (
	"context"
	"errors"
	"sync"

	"github.com/gin-gonic/gin"

	v1 "github.com/compeek/compeek/pkg/api/v1"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// stubExecutor records calls and answers from canned results.
type stubExecutor struct {
	mu       sync.Mutex
	actions  []v1.Action
	commands []string

	actionResult v1.ActionResult
	bashResult   v1.BashResponse
	info         *v1.InfoResponse
	infoErr      error
}

func (s *stubExecutor) ExecuteAction(_ context.Context, a v1.Action) v1.ActionResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.actions = append(s.actions, a)
	return s.actionResult
}

func (s *stubExecutor) ExecuteBash(_ context.Context, cmd string) v1.BashResponse {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.commands = append(s.commands, cmd)
	return s.bashResult
}

func (s *stubExecutor) GetInfo(context.Context) (*v1.InfoResponse, error) {
	if s.infoErr != nil {
		return nil, s.infoErr
	}
	if s.info == nil {
		return nil, errors.New("no info")
	}
	return s.info, nil
}

func (s *stubExecutor) HealthCheck(context.Context) bool { return true }

func (s *stubExecutor) Actions() []v1.Action {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]v1.Action(nil), s.actions...)
}

func (s *stubExecutor) Commands() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.commands...)
}
