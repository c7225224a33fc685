package handler

import (
	"context"
	"strings"
	"sync"

	"github.com/hitoshi/skycast/internal/auth"
	"github.com/hitoshi/skycast/internal/model"
	"github.com/hitoshi/skycast/internal/result"
)

// --- モック定義 ---

type mockReconciler struct {
	mu       sync.Mutex
	snapshot auth.Snapshot

	authCell    *result.Cell[*model.Profile]
	profileCell *result.Cell[model.Profile]

	signInFn  func(token string) error
	signOutFn func(ctx context.Context) error
	refreshFn func() error

	signInTokens []string
}

func newMockReconciler() *mockReconciler {
	return &mockReconciler{
		snapshot:    auth.Snapshot{Phase: auth.PhaseUnauthenticated, Auth: result.Success[*model.Profile](nil)},
		authCell:    result.NewCell(result.Success[*model.Profile](nil)),
		profileCell: result.NewCell(result.Pending[model.Profile]()),
	}
}

func (m *mockReconciler) setSnapshot(s auth.Snapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snapshot = s
}

func (m *mockReconciler) Snapshot() auth.Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshot
}

func (m *mockReconciler) AuthState() *result.Cell[*model.Profile] { return m.authCell }

func (m *mockReconciler) ProfileState() *result.Cell[model.Profile] { return m.profileCell }

func (m *mockReconciler) SignIn(token string) error {
	m.mu.Lock()
	m.signInTokens = append(m.signInTokens, token)
	m.mu.Unlock()
	if m.signInFn != nil {
		return m.signInFn(token)
	}
	return nil
}

func (m *mockReconciler) SignOut(ctx context.Context) error {
	if m.signOutFn != nil {
		return m.signOutFn(ctx)
	}
	return nil
}

func (m *mockReconciler) RefreshProfile() error {
	if m.refreshFn != nil {
		return m.refreshFn()
	}
	return nil
}

func (m *mockReconciler) tokens() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.signInTokens...)
}

type mockPipeline struct {
	mu        sync.Mutex
	city      string
	cell      *result.Cell[model.WeatherSnapshot]
	setCities []string
	refreshes int
	closed    bool
}

func newMockPipeline(city string) *mockPipeline {
	return &mockPipeline{
		city: city,
		cell: result.NewCell(result.Pending[model.WeatherSnapshot]()),
	}
}

func (m *mockPipeline) State() *result.Cell[model.WeatherSnapshot] { return m.cell }

func (m *mockPipeline) City() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.city
}

// SetCity はweather.Pipelineと同じく空白のみの入力を拒否する。
func (m *mockPipeline) SetCity(name string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	name = strings.TrimSpace(name)
	if name == "" || m.closed {
		return false
	}
	m.city = name
	m.setCities = append(m.setCities, name)
	return true
}

func (m *mockPipeline) Refresh() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return false
	}
	m.refreshes++
	return true
}

func (m *mockPipeline) cities() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.setCities...)
}

type mockPinger struct {
	err error
}

func (m *mockPinger) PingContext(ctx context.Context) error { return m.err }
