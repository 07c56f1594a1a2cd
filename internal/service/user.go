package service

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"radiochat/internal/auth"
	"radiochat/internal/config"
	"radiochat/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const minPasswordLen = 8

var usernameRe = regexp.MustCompile(`^[A-Za-z0-9._-]{3,32}$`)

// UserService 封装用户注册与认证：公钥挑战签名或密码登录，签发 access/refresh token 对。
type UserService struct {
	db  *gorm.DB
	cfg config.Config
	now func() time.Time
}

func NewUserService(db *gorm.DB, cfg config.Config) *UserService {
	return &UserService{db: db, cfg: cfg, now: time.Now}
}

// RegisterInput 至少需要公钥或密码之一。
type RegisterInput struct {
	Username  string `json:"username"`
	PublicKey string `json:"publicKey"`
	KeyType   string `json:"keyType"`
	Password  string `json:"password"`
}

// AuthResult 是注册、登录、签名校验成功后的返回。
type AuthResult struct {
	UserID       string `json:"userId"`
	Username     string `json:"username"`
	Token        string `json:"token"`
	RefreshToken string `json:"refreshToken"`
}

// Register 注册新用户并直接签发 token。
func (s *UserService) Register(ctx context.Context, in RegisterInput) (*AuthResult, error) {
	if !usernameRe.MatchString(in.Username) {
		return nil, ErrInvalidUsername
	}
	if in.PublicKey == "" && in.Password == "" {
		return nil, ErrMissingCredential
	}
	user := models.User{ID: uuid.NewString(), Username: in.Username}
	if in.PublicKey != "" {
		if in.KeyType == "" {
			in.KeyType = auth.KeyEd25519
		}
		if err := auth.ValidatePublicKey(in.KeyType, in.PublicKey); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
		}
		user.PublicKey = in.PublicKey
		user.KeyType = in.KeyType
	}
	if in.Password != "" {
		if len(in.Password) < minPasswordLen {
			return nil, ErrWeakPassword
		}
		hash, err := auth.HashPassword(in.Password)
		if err != nil {
			return nil, err
		}
		user.PasswordHash = hash
	}

	var result *AuthResult
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&user).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return ErrUsernameTaken
			}
			return err
		}
		var err error
		result, err = s.issue(tx, &user)
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Challenge 为持有公钥的用户生成一次性挑战。
func (s *UserService) Challenge(ctx context.Context, username string) (string, error) {
	db := s.db.WithContext(ctx)
	var user models.User
	if err := db.Where("username = ?", username).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", ErrInvalidCredentials
		}
		return "", err
	}
	if user.PublicKey == "" {
		return "", ErrInvalidCredentials
	}
	challenge, err := auth.NewChallenge()
	if err != nil {
		return "", err
	}
	now := s.now()
	err = db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("expires_at <= ?", now).Delete(&models.AuthChallenge{}).Error; err != nil {
			return err
		}
		ttl := time.Duration(s.cfg.ChallengeTTLSeconds) * time.Second
		return tx.Create(&models.AuthChallenge{Username: username, Challenge: challenge, ExpiresAt: now.Add(ttl)}).Error
	})
	if err != nil {
		return "", err
	}
	return challenge, nil
}

// Verify 校验对最近一次挑战的签名。挑战无论成功与否都会被消费。
// publicKey 非空时必须与注册时的公钥一致。
func (s *UserService) Verify(ctx context.Context, username, signature, publicKey string) (*AuthResult, error) {
	var result *AuthResult
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var user models.User
		if err := tx.Where("username = ?", username).First(&user).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrInvalidCredentials
			}
			return err
		}
		if user.PublicKey == "" || (publicKey != "" && publicKey != user.PublicKey) {
			return ErrInvalidCredentials
		}
		var ch models.AuthChallenge
		err := tx.Where("username = ? AND expires_at > ?", username, s.now()).Order("id desc").First(&ch).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrChallengeExpired
		}
		if err != nil {
			return err
		}
		if err := tx.Delete(&ch).Error; err != nil {
			return err
		}
		if err := auth.VerifySignature(user.KeyType, user.PublicKey, ch.Challenge, signature); err != nil {
			return ErrInvalidCredentials
		}
		result, err = s.issue(tx, &user)
		return err
	})
	if errors.Is(err, ErrInvalidCredentials) {
		// 事务已回滚，补删挑战，保证挑战只能使用一次。
		s.db.WithContext(ctx).Where("username = ?", username).Delete(&models.AuthChallenge{})
	}
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Login 校验用户名密码并签发 token 对。
func (s *UserService) Login(ctx context.Context, username, password string) (*AuthResult, error) {
	var user models.User
	if err := s.db.WithContext(ctx).Where("username = ?", username).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if user.PasswordHash == "" || !auth.VerifyPassword(user.PasswordHash, password) {
		return nil, ErrInvalidCredentials
	}
	return s.issue(s.db.WithContext(ctx), &user)
}

// RefreshTokens 验证旧 refresh token 并签发新 token 对（旋转刷新）。
func (s *UserService) RefreshTokens(ctx context.Context, oldRT string) (*AuthResult, error) {
	var result *AuthResult
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		rec, err := auth.ValidateRefreshToken(tx, oldRT)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrInvalidCredentials
			}
			return err
		}
		if err := auth.RevokeRefreshToken(tx, oldRT); err != nil {
			return err
		}
		var user models.User
		if err := tx.Where("id = ?", rec.UserID).First(&user).Error; err != nil {
			return ErrInvalidCredentials
		}
		result, err = s.issue(tx, &user)
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *UserService) issue(tx *gorm.DB, user *models.User) (*AuthResult, error) {
	at, err := auth.GenerateAccessToken(user.ID, user.Username, s.cfg.JWTSecret, s.cfg.AccessTokenTTLMinutes)
	if err != nil {
		return nil, err
	}
	rt, err := auth.GenerateRefreshToken()
	if err != nil {
		return nil, err
	}
	exp := s.now().Add(time.Duration(s.cfg.RefreshTokenTTLDays) * 24 * time.Hour)
	if err := auth.SaveRefreshToken(tx, user.ID, rt, exp); err != nil {
		return nil, err
	}
	return &AuthResult{UserID: user.ID, Username: user.Username, Token: at, RefreshToken: rt}, nil
}
