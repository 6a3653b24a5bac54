// File: internal/mocks/mocks.go
package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/xkilldash9x/resonance/api/schemas"
	"github.com/xkilldash9x/resonance/internal/config"
)

// -- Config Mock --

// MockConfig mocks the config.Interface.
type MockConfig struct {
	mock.Mock
}

var _ config.Interface = (*MockConfig)(nil)

func (m *MockConfig) Logger() config.LoggerConfig {
	args := m.Called()
	return args.Get(0).(config.LoggerConfig)
}

func (m *MockConfig) Database() config.DatabaseConfig {
	args := m.Called()
	return args.Get(0).(config.DatabaseConfig)
}

func (m *MockConfig) Agent() config.AgentConfig {
	args := m.Called()
	return args.Get(0).(config.AgentConfig)
}

func (m *MockConfig) Gates() config.GatesConfig {
	args := m.Called()
	return args.Get(0).(config.GatesConfig)
}

func (m *MockConfig) Scheduler() config.SchedulerConfig {
	args := m.Called()
	return args.Get(0).(config.SchedulerConfig)
}

func (m *MockConfig) Patterns() config.PatternsConfig {
	args := m.Called()
	return args.Get(0).(config.PatternsConfig)
}

func (m *MockConfig) Platform() config.PlatformConfig {
	args := m.Called()
	return args.Get(0).(config.PlatformConfig)
}

func (m *MockConfig) SetPlatformDryRun(b bool) { m.Called(b) }
func (m *MockConfig) SetDatabaseType(t string) { m.Called(t) }

// -- LLM Client Mock --

// MockLLMClient mocks the schemas.LLMClient interface.
type MockLLMClient struct {
	mock.Mock
}

var _ schemas.LLMClient = (*MockLLMClient)(nil)

// NewMockLLMClient creates a new mock LLM client.
func NewMockLLMClient() *MockLLMClient {
	return new(MockLLMClient)
}

func (m *MockLLMClient) Generate(ctx context.Context, req schemas.GenerationRequest) (string, error) {
	args := m.Called(ctx, req)
	return args.String(0), args.Error(1)
}

func (m *MockLLMClient) Close() error {
	args := m.Called()
	return args.Error(0)
}

// -- Platform Mock --

// MockPlatform mocks the schemas.Platform interface.
type MockPlatform struct {
	mock.Mock
}

var _ schemas.Platform = (*MockPlatform)(nil)

func (m *MockPlatform) FetchStimuli(ctx context.Context, limit int) ([]schemas.Stimulus, error) {
	args := m.Called(ctx, limit)
	stimuli, _ := args.Get(0).([]schemas.Stimulus)
	return stimuli, args.Error(1)
}

func (m *MockPlatform) PostAction(ctx context.Context, decision schemas.Decision) (schemas.ActionReceipt, error) {
	args := m.Called(ctx, decision)
	return args.Get(0).(schemas.ActionReceipt), args.Error(1)
}

func (m *MockPlatform) FetchMetrics(ctx context.Context, artifactID string) (*schemas.Metrics, error) {
	args := m.Called(ctx, artifactID)
	metrics, _ := args.Get(0).(*schemas.Metrics)
	return metrics, args.Error(1)
}

// -- Store Mock --

// MockStore mocks the schemas.Store interface.
type MockStore struct {
	mock.Mock
}

var _ schemas.Store = (*MockStore)(nil)

func (m *MockStore) SaveEvent(ctx context.Context, event schemas.EmotionalEvent) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

func (m *MockStore) AttachOutcome(ctx context.Context, eventID, outcomeID string) error {
	args := m.Called(ctx, eventID, outcomeID)
	return args.Error(0)
}

func (m *MockStore) CreateOutcome(ctx context.Context, outcome schemas.PendingOutcome) error {
	args := m.Called(ctx, outcome)
	return args.Error(0)
}

func (m *MockStore) GetOutcome(ctx context.Context, id string) (schemas.PendingOutcome, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(schemas.PendingOutcome), args.Error(1)
}

func (m *MockStore) ClaimDueOutcomes(ctx context.Context, now time.Time, limit int, lease time.Duration) ([]schemas.PendingOutcome, error) {
	args := m.Called(ctx, now, limit, lease)
	outcomes, _ := args.Get(0).([]schemas.PendingOutcome)
	return outcomes, args.Error(1)
}

func (m *MockStore) CompleteOutcome(ctx context.Context, id string, latest *schemas.Metrics, score float64, now time.Time) error {
	args := m.Called(ctx, id, latest, score, now)
	return args.Error(0)
}

func (m *MockStore) FailOutcome(ctx context.Context, id string, reason string, now time.Time) error {
	args := m.Called(ctx, id, reason, now)
	return args.Error(0)
}

func (m *MockStore) RequeueOutcome(ctx context.Context, id string, checkAfter time.Time, attempts int, reason string, now time.Time) error {
	args := m.Called(ctx, id, checkAfter, attempts, reason, now)
	return args.Error(0)
}

func (m *MockStore) LoadPatterns(ctx context.Context) ([]schemas.Pattern, error) {
	args := m.Called(ctx)
	patterns, _ := args.Get(0).([]schemas.Pattern)
	return patterns, args.Error(1)
}

func (m *MockStore) RecordPattern(ctx context.Context, sample schemas.PatternSample) (schemas.Pattern, error) {
	args := m.Called(ctx, sample)
	p, _ := args.Get(0).(schemas.Pattern)
	return p, args.Error(1)
}

func (m *MockStore) GetRelationship(ctx context.Context, counterpartyID string) (schemas.Relationship, error) {
	args := m.Called(ctx, counterpartyID)
	return args.Get(0).(schemas.Relationship), args.Error(1)
}

func (m *MockStore) UpsertRelationship(ctx context.Context, rel schemas.Relationship) error {
	args := m.Called(ctx, rel)
	return args.Error(0)
}

func (m *MockStore) LoadAffect(ctx context.Context) (schemas.AffectSnapshot, error) {
	args := m.Called(ctx)
	return args.Get(0).(schemas.AffectSnapshot), args.Error(1)
}

func (m *MockStore) SaveAffect(ctx context.Context, snap schemas.AffectSnapshot) error {
	args := m.Called(ctx, snap)
	return args.Error(0)
}

func (m *MockStore) Close() error {
	args := m.Called()
	return args.Error(0)
}
