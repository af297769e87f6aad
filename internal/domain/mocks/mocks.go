// Package mocks holds testify mocks for the domain ports.
package mocks

import (
	"github.com/stretchr/testify/mock"

	"github.com/fairyhunter13/airdrop-analyzer/internal/domain"
)

type testingT interface {
	mock.TestingT
	Cleanup(func())
}

// MockChatCompleter is a mock of domain.ChatCompleter.
type MockChatCompleter struct{ mock.Mock }

// NewMockChatCompleter registers AssertExpectations on test cleanup.
func NewMockChatCompleter(t testingT) *MockChatCompleter {
	m := &MockChatCompleter{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

// ChatCompletion provides a mock function.
func (m *MockChatCompleter) ChatCompletion(ctx domain.Context, req domain.ChatRequest) (*domain.Completion, error) {
	ret := m.Called(ctx, req)
	var c *domain.Completion
	if v := ret.Get(0); v != nil {
		c = v.(*domain.Completion)
	}
	return c, ret.Error(1)
}

// MockAirdropRepository is a mock of domain.AirdropRepository.
type MockAirdropRepository struct{ mock.Mock }

// NewMockAirdropRepository registers AssertExpectations on test cleanup.
func NewMockAirdropRepository(t testingT) *MockAirdropRepository {
	m := &MockAirdropRepository{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

// Save provides a mock function.
func (m *MockAirdropRepository) Save(ctx domain.Context, a domain.AnalyzedPost) (domain.StoreOutcome, error) {
	ret := m.Called(ctx, a)
	return ret.Get(0).(domain.StoreOutcome), ret.Error(1)
}

// ListLatest provides a mock function.
func (m *MockAirdropRepository) ListLatest(ctx domain.Context, limit int) ([]domain.ProjectSummary, error) {
	ret := m.Called(ctx, limit)
	var out []domain.ProjectSummary
	if v := ret.Get(0); v != nil {
		out = v.([]domain.ProjectSummary)
	}
	return out, ret.Error(1)
}

// MockAnalysisPublisher is a mock of domain.AnalysisPublisher.
type MockAnalysisPublisher struct{ mock.Mock }

// NewMockAnalysisPublisher registers AssertExpectations on test cleanup.
func NewMockAnalysisPublisher(t testingT) *MockAnalysisPublisher {
	m := &MockAnalysisPublisher{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

// PublishAnalysis provides a mock function.
func (m *MockAnalysisPublisher) PublishAnalysis(ctx domain.Context, a domain.AnalyzedPost, out domain.StoreOutcome) error {
	return m.Called(ctx, a, out).Error(0)
}

// MockPostSource is a mock of domain.PostSource.
type MockPostSource struct{ mock.Mock }

// NewMockPostSource registers AssertExpectations on test cleanup.
func NewMockPostSource(t testingT) *MockPostSource {
	m := &MockPostSource{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

// FetchPosts provides a mock function.
func (m *MockPostSource) FetchPosts(ctx domain.Context, limit int) ([]domain.Post, error) {
	ret := m.Called(ctx, limit)
	var out []domain.Post
	if v := ret.Get(0); v != nil {
		out = v.([]domain.Post)
	}
	return out, ret.Error(1)
}
