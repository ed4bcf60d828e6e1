package common

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/cucumber/godog"
)

// TestContext interface defines the methods needed from the main test context
type TestContext interface {
	SetActor(actorID, role string) error
	UseActor(actorID string) error
	ClearActor()
	GET(path string) error
	POST(path string, body interface{}) error
	GetLastStatusCode() int
	GetLastResponseBody() []byte
	GetResponseField(field string) (interface{}, error)
}

// RegisterSteps registers actor, request and assertion steps.
func RegisterSteps(ctx *godog.ScenarioContext, tc TestContext) {
	steps := &commonSteps{tc: tc}

	ctx.Step(`^the server is running$`, steps.serverIsRunning)
	ctx.Step(`^an actor "([^"]*)" with role "([^"]*)"$`, steps.registerActor)
	ctx.Step(`^I am "([^"]*)"$`, steps.useActor)
	ctx.Step(`^I am anonymous$`, steps.anonymous)
	ctx.Step(`^I GET "([^"]*)"$`, steps.get)
	ctx.Step(`^the response status should be (\d+)$`, steps.statusShouldBe)
	ctx.Step(`^the response field "([^"]*)" should equal "([^"]*)"$`, steps.fieldShouldEqual)
	ctx.Step(`^the response field "([^"]*)" should be (true|false)$`, steps.fieldShouldBeBool)
	ctx.Step(`^the error code should be "([^"]*)"$`, steps.errorCodeShouldBe)
}

type commonSteps struct {
	tc TestContext
}

func (s *commonSteps) serverIsRunning(ctx context.Context) error {
	s.tc.ClearActor()
	if err := s.tc.GET("/livez"); err != nil {
		return fmt.Errorf("server not reachable: %w", err)
	}
	if s.tc.GetLastStatusCode() != 200 {
		return fmt.Errorf("liveness probe returned %d", s.tc.GetLastStatusCode())
	}
	return nil
}

func (s *commonSteps) registerActor(ctx context.Context, actorID, role string) error {
	return s.tc.SetActor(actorID, role)
}

func (s *commonSteps) useActor(ctx context.Context, actorID string) error {
	return s.tc.UseActor(actorID)
}

func (s *commonSteps) anonymous(ctx context.Context) error {
	s.tc.ClearActor()
	return nil
}

func (s *commonSteps) get(ctx context.Context, path string) error {
	return s.tc.GET(path)
}

func (s *commonSteps) statusShouldBe(ctx context.Context, expected int) error {
	if got := s.tc.GetLastStatusCode(); got != expected {
		return fmt.Errorf("expected status %d, got %d: %s", expected, got, string(s.tc.GetLastResponseBody()))
	}
	return nil
}

func (s *commonSteps) fieldShouldEqual(ctx context.Context, field, expected string) error {
	value, err := s.tc.GetResponseField(field)
	if err != nil {
		return err
	}
	if fmt.Sprint(value) != expected {
		return fmt.Errorf("expected %s=%q, got %v", field, expected, value)
	}
	return nil
}

func (s *commonSteps) fieldShouldBeBool(ctx context.Context, field, expected string) error {
	value, err := s.tc.GetResponseField(field)
	if err != nil {
		return err
	}
	b, ok := value.(bool)
	if !ok {
		return fmt.Errorf("field %s is not a boolean: %v", field, value)
	}
	if fmt.Sprint(b) != expected {
		return fmt.Errorf("expected %s=%s, got %v", field, expected, b)
	}
	return nil
}

func (s *commonSteps) errorCodeShouldBe(ctx context.Context, expected string) error {
	var body struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(s.tc.GetLastResponseBody(), &body); err != nil {
		return fmt.Errorf("failed to parse error response: %w", err)
	}
	if body.Error != expected {
		return fmt.Errorf("expected error code %q, got %q", expected, body.Error)
	}
	return nil
}
