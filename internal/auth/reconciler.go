package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/hitoshi/skycast/internal/metrics"
	"github.com/hitoshi/skycast/internal/model"
	"github.com/hitoshi/skycast/internal/repository"
	"github.com/hitoshi/skycast/internal/result"
)

// Phase は認証照合の状態を表す。
type Phase int

const (
	PhaseUnauthenticated Phase = iota
	PhaseReconciling
	PhaseAuthenticated
	PhaseFailed
)

// String はPhaseの文字列表現を返す。
func (p Phase) String() string {
	switch p {
	case PhaseUnauthenticated:
		return "unauthenticated"
	case PhaseReconciling:
		return "reconciling"
	case PhaseAuthenticated:
		return "authenticated"
	case PhaseFailed:
		return "failed"
	default:
		return fmt.Sprintf("Phase(%d)", int(p))
	}
}

// MarshalText はJSONなどでPhaseを文字列として出力する。
func (p Phase) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// profileNotFoundMessage はプロフィール取得でレコードが見つからない場合のメッセージ。
const profileNotFoundMessage = "profile not found"

// Snapshot は照合状態の一貫した断面を表す。
type Snapshot struct {
	Phase  Phase                         `json:"phase"`
	UserID string                        `json:"userId,omitempty"`
	Auth   result.Result[*model.Profile] `json:"auth"`
}

// Reconciler はIdPのIdentityをプロフィールレコードに照合する状態機械。
//
// 発行された操作はそれぞれ世代番号を持ち、より新しい操作が発行された後に
// 完了した古い操作の結果は破棄される。世代の確認と状態の公開は同じmuの下で行う。
type Reconciler struct {
	broker  IdentityBroker
	store   repository.ProfileStore
	metrics metrics.MetricsCollector
	logger  *slog.Logger
	now     func() time.Time

	root context.Context
	stop context.CancelFunc
	wg   sync.WaitGroup

	mu            sync.Mutex
	closed        bool
	phase         Phase
	userID        string
	authGen       uint64
	authCancel    context.CancelFunc
	profileGen    uint64
	profileCancel context.CancelFunc

	authState    *result.Cell[*model.Profile]
	profileState *result.Cell[model.Profile]
}

// NewReconciler はReconcilerを生成する。
// collectorとloggerはnilの場合に既定値を使う。
func NewReconciler(
	broker IdentityBroker,
	store repository.ProfileStore,
	collector metrics.MetricsCollector,
	logger *slog.Logger,
) *Reconciler {
	if collector == nil {
		collector = metrics.Nop{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	root, stop := context.WithCancel(context.Background())
	return &Reconciler{
		broker:       broker,
		store:        store,
		metrics:      collector,
		logger:       logger,
		now:          time.Now,
		root:         root,
		stop:         stop,
		phase:        PhaseUnauthenticated,
		authState:    result.NewCell(result.Pending[*model.Profile]()),
		profileState: result.NewCell(result.Pending[model.Profile]()),
	}
}

// AuthState は認証状態のストリームを返す。Success(nil)はサインアウト状態を表す。
func (r *Reconciler) AuthState() *result.Cell[*model.Profile] {
	return r.authState
}

// ProfileState はプロフィールのストリームを返す。
func (r *Reconciler) ProfileState() *result.Cell[model.Profile] {
	return r.profileState
}

// Phase は現在の照合状態を返す。
func (r *Reconciler) Phase() Phase {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.phase
}

// Snapshot は状態・ユーザーID・認証結果を一度に返す。
func (r *Reconciler) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return Snapshot{Phase: r.phase, UserID: r.userID, Auth: r.authState.Get()}
}

// Start はコールドスタート時の照合を開始する。
// Brokerにセッションがあればトークン交換なしで再訪ユーザーの照合を行い、
// なければSuccess(nil)を公開する。
func (r *Reconciler) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	gen, ctx, err := r.beginAuthLocked(r.phase)
	if err != nil {
		return err
	}
	r.spawnLocked(func() {
		defer r.recoverAuth(gen)
		r.coldStart(ctx, gen)
	})
	return nil
}

// SignIn はIdPトークンを交換し、プロフィールを照合する。
// 直ちにPendingを公開し、照合はバックグラウンドで行う。
// 空のトークンはErrEmptyTokenを返し、何も公開しない。
func (r *Reconciler) SignIn(token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return ErrEmptyToken
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	gen, ctx, err := r.beginAuthLocked(PhaseReconciling)
	if err != nil {
		return err
	}
	r.spawnLocked(func() {
		defer r.recoverAuth(gen)
		r.signIn(ctx, gen, token)
	})
	return nil
}

// FetchProfile はプロフィールを取得してプロフィールストリームに公開する。
// レコードが存在しなくても作成は行わない。
func (r *Reconciler) FetchProfile(userID string) error {
	if strings.TrimSpace(userID) == "" {
		return ErrEmptyUserID
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return ErrClosed
	}
	r.startProfileFetchLocked(userID)
	return nil
}

// RefreshProfile はサインイン中のユーザーのプロフィールを再取得する。
// ユーザーIDの確認と取得の開始は同じロックの下で行う。
func (r *Reconciler) RefreshProfile() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return ErrClosed
	}
	if r.userID == "" {
		return ErrNotSignedIn
	}
	r.startProfileFetchLocked(r.userID)
	return nil
}

// SignOut は進行中の操作を無効化してローカル状態をクリアし、Brokerのセッションを破棄する。
// プロフィールレコードは削除しない。Brokerの失敗は呼び出し元に返すが、ローカル状態はクリア済みになる。
func (r *Reconciler) SignOut(ctx context.Context) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return ErrClosed
	}
	r.authGen++
	r.profileGen++
	r.cancelLocked()
	userID := r.userID
	r.phase = PhaseUnauthenticated
	r.userID = ""
	r.authState.Publish(result.Success[*model.Profile](nil))
	r.profileState.Publish(result.Pending[model.Profile]())
	r.mu.Unlock()

	if err := r.broker.SignOut(ctx); err != nil {
		r.logger.Error("failed to sign out from identity broker",
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("failed to sign out: %w", err)
	}

	r.logger.Info("user signed out", slog.String("user_id", userID))
	return nil
}

// Close は進行中の操作をキャンセルし、バックグラウンド処理の終了を待つ。
func (r *Reconciler) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	r.cancelLocked()
	r.stop()
	r.mu.Unlock()

	r.wg.Wait()
}

// beginAuthLocked は新しい認証世代を発行し、以前の認証とプロフィール取得を無効化する。
// 呼び出し時にmuを保持していること。
func (r *Reconciler) beginAuthLocked(phase Phase) (uint64, context.Context, error) {
	if r.closed {
		return 0, nil, ErrClosed
	}
	r.authGen++
	r.profileGen++
	r.cancelLocked()

	ctx, cancel := context.WithCancel(r.root)
	r.authCancel = cancel
	r.phase = phase
	r.authState.Publish(result.Pending[*model.Profile]())
	return r.authGen, ctx, nil
}

func (r *Reconciler) cancelLocked() {
	if r.authCancel != nil {
		r.authCancel()
		r.authCancel = nil
	}
	if r.profileCancel != nil {
		r.profileCancel()
		r.profileCancel = nil
	}
}

// spawnLocked はClose時に待ち合わせるgoroutineを起動する。呼び出し時にmuを保持していること。
func (r *Reconciler) spawnLocked(fn func()) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		fn()
	}()
}

func (r *Reconciler) coldStart(ctx context.Context, gen uint64) {
	identity, err := r.broker.CurrentSession(ctx)
	if err != nil {
		r.logger.Error("failed to inspect current session", slog.String("error", err.Error()))
		r.publishAuth(gen, PhaseFailed, result.Failure[*model.Profile](err.Error()))
		return
	}
	if identity == nil {
		r.publishAuth(gen, PhaseUnauthenticated, result.Success[*model.Profile](nil))
		return
	}

	if !r.setPhase(gen, PhaseReconciling) {
		return
	}
	r.logger.Info("restoring session", slog.String("user_id", identity.ExternalID))
	r.fetchOrCreate(ctx, gen, identity)
}

func (r *Reconciler) signIn(ctx context.Context, gen uint64, token string) {
	exchanged, err := r.broker.Exchange(ctx, token)
	if err != nil {
		if r.publishAuth(gen, PhaseUnauthenticated, result.Failure[*model.Profile](err.Error())) {
			r.metrics.RecordSignIn(metrics.OutcomeExchangeFailure)
			r.logger.Warn("identity exchange failed", slog.String("error", err.Error()))
		}
		return
	}

	identity := exchanged.Identity
	if exchanged.IsNewIdentity {
		r.createProfile(ctx, gen, &identity)
		return
	}
	r.fetchOrCreate(ctx, gen, &identity)
}

// fetchOrCreate は再訪ユーザーのプロフィールを取得する。
// ErrNotFoundの場合のみプロフィールを再作成し、それ以外の失敗はそのまま公開する。
func (r *Reconciler) fetchOrCreate(ctx context.Context, gen uint64, identity *model.Identity) {
	profile, err := r.store.Get(ctx, identity.ExternalID)
	switch {
	case err == nil:
		if r.publishAuth(gen, PhaseAuthenticated, result.Success(profile)) {
			r.metrics.RecordSignIn(metrics.OutcomeSuccess)
		}
	case errors.Is(err, model.ErrNotFound):
		r.logger.Warn("profile missing for returning user, recreating",
			slog.String("user_id", identity.ExternalID),
		)
		r.metrics.RecordSelfHeal()
		r.createProfile(ctx, gen, identity)
	default:
		if r.publishAuth(gen, PhaseFailed, result.Failure[*model.Profile](err.Error())) {
			r.metrics.RecordSignIn(metrics.OutcomeFailure)
			r.logger.Error("failed to load profile",
				slog.String("user_id", identity.ExternalID),
				slog.String("error", err.Error()),
			)
		}
	}
}

func (r *Reconciler) createProfile(ctx context.Context, gen uint64, identity *model.Identity) {
	profile := model.NewProfileFromIdentity(identity, r.now())
	if err := r.store.Put(ctx, profile.ID, profile); err != nil {
		msg := "failed to create profile: " + err.Error()
		if r.publishAuth(gen, PhaseFailed, result.Failure[*model.Profile](msg)) {
			r.metrics.RecordSignIn(metrics.OutcomeFailure)
			r.logger.Error("failed to create profile",
				slog.String("user_id", identity.ExternalID),
				slog.String("error", err.Error()),
			)
		}
		return
	}

	if r.publishAuth(gen, PhaseAuthenticated, result.Success(profile)) {
		r.metrics.RecordSignIn(metrics.OutcomeSuccess)
		r.logger.Info("profile created", slog.String("user_id", profile.ID))
	}
}

// setPhase は世代が最新の場合のみ状態を更新する。
func (r *Reconciler) setPhase(gen uint64, phase Phase) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if gen != r.authGen || r.closed {
		return false
	}
	r.phase = phase
	return true
}

// publishAuth は世代が最新の場合のみ認証結果を公開し、公開したかを返す。
// 認証済みになった場合は同じロックの下でプロフィールの取得を開始する。
func (r *Reconciler) publishAuth(gen uint64, phase Phase, res result.Result[*model.Profile]) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return false
	}
	if gen != r.authGen {
		r.metrics.RecordSuperseded(metrics.ComponentAuth)
		return false
	}

	r.phase = phase
	r.userID = ""
	if r.authCancel != nil {
		r.authCancel()
		r.authCancel = nil
	}
	r.authState.Publish(res)

	if profile, ok := res.Value(); ok && profile != nil && phase == PhaseAuthenticated {
		r.userID = profile.ID
		r.startProfileFetchLocked(profile.ID)
	}
	return true
}

// startProfileFetchLocked は新しいプロフィール世代を発行して取得を開始する。
// 呼び出し時にmuを保持していること。
func (r *Reconciler) startProfileFetchLocked(userID string) {
	r.profileGen++
	if r.profileCancel != nil {
		r.profileCancel()
	}
	ctx, cancel := context.WithCancel(r.root)
	r.profileCancel = cancel
	gen := r.profileGen
	r.profileState.Publish(result.Pending[model.Profile]())

	r.spawnLocked(func() {
		defer r.recoverProfile(gen)
		r.fetchProfile(ctx, gen, userID)
	})
}

func (r *Reconciler) fetchProfile(ctx context.Context, gen uint64, userID string) {
	profile, err := r.store.Get(ctx, userID)

	var res result.Result[model.Profile]
	switch {
	case err == nil && profile != nil:
		res = result.Success(*profile)
	case err == nil, errors.Is(err, model.ErrNotFound):
		res = result.Failure[model.Profile](profileNotFoundMessage)
	default:
		res = result.Failure[model.Profile](err.Error())
	}
	r.publishProfile(gen, res)
}

func (r *Reconciler) publishProfile(gen uint64, res result.Result[model.Profile]) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return false
	}
	if gen != r.profileGen {
		r.metrics.RecordSuperseded(metrics.ComponentProfile)
		return false
	}
	if r.profileCancel != nil {
		r.profileCancel()
		r.profileCancel = nil
	}
	r.profileState.Publish(res)
	return true
}

func (r *Reconciler) recoverAuth(gen uint64) {
	if rec := recover(); rec != nil {
		r.logger.Error("panic in auth reconciliation", slog.Any("panic", rec))
		r.publishAuth(gen, PhaseFailed, result.Failure[*model.Profile](fmt.Sprintf("internal error: %v", rec)))
	}
}

func (r *Reconciler) recoverProfile(gen uint64) {
	if rec := recover(); rec != nil {
		r.logger.Error("panic in profile fetch", slog.Any("panic", rec))
		r.publishProfile(gen, result.Failure[model.Profile](fmt.Sprintf("internal error: %v", rec)))
	}
}
