package services

import (
	"context"
	"crypto/subtle"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/avekshin/authkeeper/internal/common"
	"github.com/avekshin/authkeeper/internal/dbx"
	"github.com/avekshin/authkeeper/internal/logging"
	"github.com/avekshin/authkeeper/internal/server/mail"
	"github.com/avekshin/authkeeper/internal/server/models"
	"github.com/avekshin/authkeeper/internal/server/password"
	"github.com/avekshin/authkeeper/internal/server/repositories/repomanager"
)

// opaqueTokenBytes sizes the challenge token; hex-encoded it is 64 chars.
const opaqueTokenBytes = 32

// ChallengeService runs the one-time-code flows: requesting a challenge
// (which emails the code), verifying it, and the password flows that consume
// a challenge as their proof of email control.
//
// A verified challenge is deleted in the same transaction as the state change
// it authorizes, so a code can never be redeemed twice.
type ChallengeService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	hasher      *password.Hasher
	mailer      mail.Mailer
	logger      logging.Logger
	ttl         time.Duration
	otpDigits   int
}

// NewChallengeService constructs a ChallengeService from its collaborators.
func NewChallengeService(db *sql.DB, m repomanager.RepositoryManager, hasher *password.Hasher,
	mailer mail.Mailer, logger logging.Logger, ttl time.Duration, otpDigits int) *ChallengeService {
	return &ChallengeService{
		db:          db,
		repomanager: m,
		hasher:      hasher,
		mailer:      mailer,
		logger:      logger.With("service", "challenge"),
		ttl:         ttl,
		otpDigits:   otpDigits,
	}
}

// Create mints a fresh challenge for (accountID, purpose), superseding any
// earlier one of the same purpose in the same transaction.
func (s *ChallengeService) Create(ctx context.Context, accountID string, purpose models.Purpose) (*models.Challenge, error) {
	if !models.ValidPurpose(purpose) {
		return nil, fmt.Errorf("unknown challenge purpose %q", purpose)
	}

	code, err := common.MakeOTP(s.otpDigits)
	if err != nil {
		return nil, common.ErrInternal
	}
	token, err := common.MakeRandHexString(opaqueTokenBytes)
	if err != nil {
		return nil, common.ErrInternal
	}

	var created *models.Challenge
	if err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.repomanager.Challenges(tx)
		if err := repo.Delete(ctx, accountID, purpose); err != nil {
			return err
		}
		var createErr error
		created, createErr = repo.Create(ctx, &models.Challenge{
			AccountID: accountID,
			Purpose:   purpose,
			Code:      code,
			Token:     token,
			ExpiresAt: time.Now().Add(s.ttl),
		})
		return createErr
	}); err != nil {
		return nil, fmt.Errorf("error creating challenge: %w", err)
	}

	return created, nil
}

// Delete drops the pending challenge for (accountID, purpose), if any.
func (s *ChallengeService) Delete(ctx context.Context, accountID string, purpose models.Purpose) error {
	repo := s.repomanager.Challenges(s.db)
	if err := repo.Delete(ctx, accountID, purpose); err != nil {
		return common.ErrInternal
	}
	return nil
}

// RequestChallenge mints a challenge and emails its code to the account's
// address. A send failure is returned to the caller but leaves the challenge
// valid, so a later resend can supersede or reuse the flow.
func (s *ChallengeService) RequestChallenge(ctx context.Context, accountID string, purpose models.Purpose) error {
	accounts := s.repomanager.Accounts(s.db)
	account, err := accounts.FindByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return common.ErrNotFound
		}
		return common.ErrInternal
	}

	challenge, err := s.Create(ctx, accountID, purpose)
	if err != nil {
		return err
	}

	subject, body := challengeEmail(purpose, challenge.Code)
	if err := s.mailer.Send(ctx, account.Email, subject, body); err != nil {
		s.logger.Warn(ctx, "challenge email send failed",
			"account_id", accountID, "purpose", purpose, "error", err)
		return common.ErrUnavailable
	}

	return nil
}

// RequestChallengeByEmail is RequestChallenge addressed by email, for flows
// where the caller is not authenticated (forgot password).
func (s *ChallengeService) RequestChallengeByEmail(ctx context.Context, email string, purpose models.Purpose) error {
	accounts := s.repomanager.Accounts(s.db)
	account, err := accounts.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return common.ErrNotFound
		}
		return common.ErrInternal
	}
	return s.RequestChallenge(ctx, account.ID, purpose)
}

// VerifyChallenge consumes the pending challenge when the code matches. For
// email-verification challenges the account is marked verified in the same
// transaction as the consumption.
func (s *ChallengeService) VerifyChallenge(ctx context.Context, accountID, code string, purpose models.Purpose) error {
	if !models.ValidPurpose(purpose) {
		return common.ErrChallengeNotFound
	}
	return s.consume(ctx, accountID, code, purpose, func(ctx context.Context, tx dbx.DBTX) error {
		if purpose != models.PurposeEmailVerification {
			return nil
		}
		return s.repomanager.Accounts(tx).SetEmailVerified(ctx, accountID)
	})
}

// ResetPassword replaces the account's password after a forgot-password code
// checks out. The live session is dropped along with the consumed challenge.
func (s *ChallengeService) ResetPassword(ctx context.Context, email, code, newPassword string) error {
	accounts := s.repomanager.Accounts(s.db)
	account, err := accounts.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return common.ErrNotFound
		}
		return common.ErrInternal
	}

	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return common.ErrInternal
	}

	return s.consume(ctx, account.ID, code, models.PurposeForgotPassword, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.repomanager.Accounts(tx)
		if err := repo.UpdatePassword(ctx, account.ID, hash); err != nil {
			return err
		}
		return repo.ClearRefreshToken(ctx, account.ID)
	})
}

// SetPassword gives a federated-only account a password credential after a
// set-password code checks out, unioning the password provider into the
// account's provider set. The live session is dropped.
func (s *ChallengeService) SetPassword(ctx context.Context, accountID, code, newPassword string) error {
	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return common.ErrInternal
	}

	return s.consume(ctx, accountID, code, models.PurposeSetPassword, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.repomanager.Accounts(tx)
		if err := repo.UpdatePassword(ctx, accountID, hash); err != nil {
			return err
		}
		if err := repo.AddProvider(ctx, accountID, models.ProviderPassword); err != nil {
			return err
		}
		return repo.ClearRefreshToken(ctx, accountID)
	})
}

// consume looks up the (accountID, purpose) challenge, checks the code and
// expiry, deletes the challenge and runs onSuccess inside one transaction.
// A missing challenge and a wrong code produce the same error so callers
// cannot probe which codes exist. An expired challenge is deleted too, but
// the deletion is committed while onSuccess is skipped and
// common.ErrChallengeExpired is reported.
func (s *ChallengeService) consume(ctx context.Context, accountID, code string, purpose models.Purpose,
	onSuccess func(ctx context.Context, tx dbx.DBTX) error) error {

	var expiredErr error
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.repomanager.Challenges(tx)

		challenge, err := repo.Find(ctx, accountID, purpose)
		if err != nil {
			if errors.Is(err, common.ErrNotFound) {
				return common.ErrChallengeNotFound
			}
			return common.ErrInternal
		}

		if subtle.ConstantTimeCompare([]byte(challenge.Code), []byte(code)) != 1 {
			return common.ErrChallengeNotFound
		}

		if err := repo.Delete(ctx, accountID, purpose); err != nil {
			return common.ErrInternal
		}

		if challenge.Expired(time.Now()) {
			// keep the deletion, skip the state change
			expiredErr = common.ErrChallengeExpired
			return nil
		}

		return onSuccess(ctx, tx)
	})
	if err != nil {
		return err
	}
	return expiredErr
}

func challengeEmail(purpose models.Purpose, code string) (subject, body string) {
	switch purpose {
	case models.PurposeForgotPassword:
		return mail.SubjectResetPassword, mail.BuildResetPasswordEmail(code)
	case models.PurposeSetPassword:
		return mail.SubjectSetPassword, mail.BuildSetPasswordEmail(code)
	default:
		return mail.SubjectVerifyEmail, mail.BuildVerificationEmail(code)
	}
}
