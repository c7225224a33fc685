package auth

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/google/uuid"
	"github.com/hitoshi/skycast/internal/model"
	"github.com/hitoshi/skycast/internal/repository"
)

const (
	// DefaultIssuer はGoogleのOIDC発行者URL。
	DefaultIssuer = "https://accounts.google.com"

	defaultProvider      = "google"
	defaultSessionMaxAge = 30 * 24 * 60 * 60
)

// TokenVerifier はIDトークンの署名と標準クレームを検証する。
// *oidc.IDTokenVerifier が満たす。
type TokenVerifier interface {
	Verify(ctx context.Context, rawIDToken string) (*oidc.IDToken, error)
}

// OIDCBrokerConfig はOIDCBrokerの設定。
type OIDCBrokerConfig struct {
	Provider      string // identitiesテーブルに記録するプロバイダー名
	DeviceID      string // セッションのキーとなる端末ID
	SessionMaxAge int    // セッション有効期間（秒）
}

// OIDCBroker はOIDCのIDトークンを検証し、identitiesとsessionsテーブルで
// 初回観測の判定とデバイスセッションを管理するIdentityBroker実装。
type OIDCBroker struct {
	verifier    TokenVerifier
	identRepo   repository.IdentityRepository
	sessionRepo repository.SessionRepository
	config      OIDCBrokerConfig
	logger      *slog.Logger
	now         func() time.Time
}

// NewGoogleVerifier はissuerのディスカバリ情報からIDトークン検証器を生成する。
func NewGoogleVerifier(ctx context.Context, issuer, clientID string) (*oidc.IDTokenVerifier, error) {
	if issuer == "" {
		issuer = DefaultIssuer
	}
	provider, err := oidc.NewProvider(ctx, issuer)
	if err != nil {
		return nil, fmt.Errorf("failed to discover oidc provider: %w", err)
	}
	return provider.Verifier(&oidc.Config{ClientID: clientID}), nil
}

// NewOIDCBroker はOIDCBrokerを生成する。
func NewOIDCBroker(
	verifier TokenVerifier,
	identRepo repository.IdentityRepository,
	sessionRepo repository.SessionRepository,
	config OIDCBrokerConfig,
	logger *slog.Logger,
) *OIDCBroker {
	if config.Provider == "" {
		config.Provider = defaultProvider
	}
	if config.SessionMaxAge <= 0 {
		config.SessionMaxAge = defaultSessionMaxAge
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &OIDCBroker{
		verifier:    verifier,
		identRepo:   identRepo,
		sessionRepo: sessionRepo,
		config:      config,
		logger:      logger,
		now:         time.Now,
	}
}

// idTokenClaims はIDトークンから読み出すクレーム。
type idTokenClaims struct {
	Sub     string `json:"sub"`
	Email   string `json:"email"`
	Name    string `json:"name"`
	Picture string `json:"picture"`
}

// Exchange はIDトークンを検証し、identitiesテーブルでsubjectの初回観測を判定したうえで
// デバイスセッションを発行する。
func (b *OIDCBroker) Exchange(ctx context.Context, token string) (*ExchangeResult, error) {
	idToken, err := b.verifier.Verify(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid id token: %v", model.ErrExchange, err)
	}

	var claims idTokenClaims
	if err := idToken.Claims(&claims); err != nil {
		return nil, fmt.Errorf("%w: failed to parse id token claims: %v", model.ErrExchange, err)
	}
	if claims.Sub == "" {
		return nil, fmt.Errorf("%w: id token has no subject", model.ErrExchange)
	}

	now := b.now()
	rec, err := b.identRepo.FindByProviderAndSubject(ctx, b.config.Provider, claims.Sub)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrExchange, err)
	}

	isNew := rec == nil
	if isNew {
		rec = &model.IdentityRecord{
			ID:          uuid.New().String(),
			Provider:    b.config.Provider,
			Subject:     claims.Sub,
			DisplayName: claims.Name,
			Email:       claims.Email,
			AvatarURL:   claims.Picture,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if err := b.identRepo.Create(ctx, rec); err != nil {
			return nil, fmt.Errorf("%w: %v", model.ErrExchange, err)
		}
	} else {
		rec.DisplayName = claims.Name
		rec.Email = claims.Email
		rec.AvatarURL = claims.Picture
		rec.UpdatedAt = now
		if err := b.identRepo.UpdateAttributes(ctx, rec); err != nil {
			return nil, fmt.Errorf("%w: %v", model.ErrExchange, err)
		}
	}

	session := &model.Session{
		DeviceID:   b.config.DeviceID,
		ExternalID: claims.Sub,
		ExpiresAt:  now.Add(time.Duration(b.config.SessionMaxAge) * time.Second),
		CreatedAt:  now,
	}
	if err := b.sessionRepo.Upsert(ctx, session); err != nil {
		return nil, fmt.Errorf("%w: failed to create session: %v", model.ErrExchange, err)
	}
	// 書き込み中にサインアウト等でキャンセルされた場合、後から確定したセッションを残さない
	if err := ctx.Err(); err != nil {
		if delErr := b.sessionRepo.DeleteIssued(context.WithoutCancel(ctx), session); delErr != nil {
			b.logger.Error("failed to discard cancelled session",
				slog.String("user_id", claims.Sub),
				slog.String("error", delErr.Error()),
			)
		}
		return nil, fmt.Errorf("%w: exchange cancelled: %v", model.ErrExchange, err)
	}

	b.logger.Info("identity exchanged",
		slog.String("user_id", claims.Sub),
		slog.String("provider", b.config.Provider),
		slog.Bool("new_identity", isNew),
	)

	return &ExchangeResult{Identity: *rec.ToIdentity(), IsNewIdentity: isNew}, nil
}

// CurrentSession はデバイスの有効なセッションに紐づくIdentityを返す。
// identityの記録が失われている場合はExternalIDのみを持つIdentityを返す。
func (b *OIDCBroker) CurrentSession(ctx context.Context) (*model.Identity, error) {
	session, err := b.sessionRepo.FindByDeviceID(ctx, b.config.DeviceID)
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}
	if session == nil {
		return nil, nil
	}

	rec, err := b.identRepo.FindByProviderAndSubject(ctx, b.config.Provider, session.ExternalID)
	if err != nil {
		return nil, fmt.Errorf("failed to load identity: %w", err)
	}
	if rec == nil {
		return &model.Identity{ExternalID: session.ExternalID}, nil
	}
	return rec.ToIdentity(), nil
}

// SignOut はデバイスのセッションを削除する。
func (b *OIDCBroker) SignOut(ctx context.Context) error {
	if err := b.sessionRepo.DeleteByDeviceID(ctx, b.config.DeviceID); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// compile-time interface checks
var (
	_ IdentityBroker = (*OIDCBroker)(nil)
	_ TokenVerifier  = (*oidc.IDTokenVerifier)(nil)
)
