package attendance

import (
	"context"
	"fmt"
	"time"

	"github.com/kat-co/vala"
	"github.com/pkg/errors"

	"github.com/trezcool/shule/core"
)

// Issuer hands out attendance tokens, at most one live token per
// (class, subject, lesson date), and redeems them into presence records.
type Issuer struct {
	repo       Repository
	recorder   *Recorder
	roster     Roster
	defaultTTL time.Duration
	maxTTL     time.Duration
	locks      core.KeyedMutex
	genCode    func() (string, error)
}

func NewIssuer(repo Repository, recorder *Recorder, roster Roster, conf core.AttendanceConfig) *Issuer {
	vala.BeginValidation().Validate(
		vala.IsNotNil(repo, "repo"),
		vala.IsNotNil(recorder, "recorder"),
	).CheckAndPanic()

	iss := &Issuer{
		repo:       repo,
		recorder:   recorder,
		roster:     roster,
		defaultTTL: conf.TokenTTL,
		maxTTL:     conf.MaxTokenTTL,
		genCode:    GenerateCode,
	}
	if iss.defaultTTL <= 0 {
		iss.defaultTTL = 30 * time.Minute
	}
	if iss.maxTTL < iss.defaultTTL {
		iss.maxTTL = iss.defaultTTL
	}
	return iss
}

func (iss *Issuer) ttl(minutes int) (time.Duration, error) {
	if minutes < 0 {
		return 0, core.NewFieldError("ttl_minutes", "must be a positive number of minutes")
	}
	if minutes == 0 {
		return iss.defaultTTL, nil
	}
	ttl := time.Duration(minutes) * time.Minute
	if ttl > iss.maxTTL {
		return 0, core.NewFieldError("ttl_minutes", fmt.Sprintf("must be at most %d minutes", int(iss.maxTTL.Minutes())))
	}
	return ttl, nil
}

// IssueToken creates a token for the lesson, failing with a core.ConflictError
// while another active token of the same lesson has not expired.
func (iss *Issuer) IssueToken(ctx context.Context, nt NewToken) (Token, error) {
	if err := checkLessonKey(nt.SubjectID, nt.ClassID, nt.LessonDate); err != nil {
		return Token{}, err
	}
	if nt.TeacherID == "" {
		return Token{}, core.NewFieldError("teacher_id", "this field is required")
	}
	ttl, err := iss.ttl(nt.TTLMinutes)
	if err != nil {
		return Token{}, err
	}
	if iss.roster != nil {
		ok, err := iss.roster.IsAssigned(ctx, nt.TeacherID, nt.SubjectID, nt.ClassID)
		if err != nil {
			return Token{}, errors.Wrap(err, "checking assignment")
		}
		if !ok {
			return Token{}, core.NewFieldError("teacher_id", "teacher does not teach this subject in this class")
		}
	}

	unlock := iss.locks.Lock(core.CompositeKey(nt.ClassID, nt.SubjectID, nt.LessonDate))
	defer unlock()

	now := NowFunc().UTC().Truncate(time.Millisecond) // stores keep millisecond precision
	live, err := iss.repo.QueryTokens(ctx, TokenFilter{
		ClassID:      nt.ClassID,
		SubjectID:    nt.SubjectID,
		LessonDate:   nt.LessonDate,
		Active:       core.BoolPtr(true),
		ExpiresAfter: now,
	})
	if err != nil {
		return Token{}, errors.Wrap(err, "looking up live tokens")
	}
	if len(live) > 0 {
		return Token{}, core.NewConflictError(
			"an active token already exists for this lesson until %s", live[0].ExpiresAt.Format(time.RFC3339))
	}

	code, err := iss.genCode()
	if err != nil {
		return Token{}, errors.Wrap(err, "generating token code")
	}
	created, err := iss.repo.CreateTokens(ctx, Token{
		Code:       code,
		SubjectID:  nt.SubjectID,
		ClassID:    nt.ClassID,
		LessonDate: nt.LessonDate,
		TeacherID:  nt.TeacherID,
		CreatedAt:  now,
		ExpiresAt:  now.Add(ttl),
		Active:     true,
	})
	if err != nil {
		return Token{}, errors.Wrap(err, "creating token")
	}
	return created[0], nil
}

func (iss *Issuer) GetToken(ctx context.Context, code string) (Token, error) {
	code = core.CleanString(code, true /* lower */)
	if code == "" {
		return Token{}, core.NewNotFoundError("attendance token", code)
	}
	tokens, err := iss.repo.QueryTokens(ctx, TokenFilter{Code: code})
	if err != nil {
		return Token{}, errors.Wrap(err, "looking up token")
	}
	if len(tokens) == 0 {
		return Token{}, core.NewNotFoundError("attendance token", code)
	}
	return tokens[0], nil
}

func (iss *Issuer) QueryTokens(ctx context.Context, filter TokenFilter) ([]Token, error) {
	return iss.repo.QueryTokens(ctx, filter)
}

// RedeemToken marks the student present for the token's lesson.
// The token stays usable by the other students until it expires.
func (iss *Issuer) RedeemToken(ctx context.Context, code, studentID string) (Presence, error) {
	tok, err := iss.GetToken(ctx, code)
	if err != nil {
		return Presence{}, err
	}
	if !tok.IsRedeemable(NowFunc().UTC()) {
		if !tok.Active {
			return Presence{}, core.NewExpiredError("attendance token is closed")
		}
		return Presence{}, core.NewExpiredError("attendance token has expired")
	}
	if err := iss.recorder.checkEnrolled(ctx, studentID, tok.ClassID); err != nil {
		return Presence{}, err
	}
	return iss.recorder.RecordPresence(ctx, NewPresence{
		StudentID:  studentID,
		SubjectID:  tok.SubjectID,
		ClassID:    tok.ClassID,
		LessonDate: tok.LessonDate,
		Present:    true,
		TokenUsed:  true,
	})
}

// CloseToken deactivates the token before its expiry.
// When teacherID is set, only the issuing teacher can close it.
func (iss *Issuer) CloseToken(ctx context.Context, code, teacherID string) (Token, error) {
	tok, err := iss.GetToken(ctx, code)
	if err != nil {
		return Token{}, err
	}
	if teacherID != "" && tok.TeacherID != teacherID {
		return Token{}, core.NewNotFoundError("attendance token", tok.Code)
	}
	updated, err := iss.repo.UpdateTokens(ctx, TokenPatch{Active: core.BoolPtr(false)}, TokenFilter{IDs: []string{tok.ID}})
	if err != nil {
		return Token{}, errors.Wrap(err, "closing token")
	}
	if len(updated) == 0 {
		return Token{}, core.NewNotFoundError("attendance token", tok.Code)
	}
	return updated[0], nil
}

// SweepExpired deactivates the active tokens past their expiry and returns how many there were.
// Redemption checks expiry on its own, sweeping only tidies the stored flags.
func (iss *Issuer) SweepExpired(ctx context.Context) (int, error) {
	swept, err := iss.repo.UpdateTokens(ctx, TokenPatch{Active: core.BoolPtr(false)}, TokenFilter{
		Active:        core.BoolPtr(true),
		ExpiresBefore: NowFunc().UTC(),
	})
	if err != nil {
		return 0, errors.Wrap(err, "sweeping expired tokens")
	}
	return len(swept), nil
}

// RunSweeper calls SweepExpired every interval until ctx is done.
func (iss *Issuer) RunSweeper(ctx context.Context, interval time.Duration, logger core.Logger) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := iss.SweepExpired(ctx)
			if err != nil {
				logger.Error(err.Error(), err)
				continue
			}
			if n > 0 {
				logger.Info(fmt.Sprintf("attendance: deactivated %d expired token(s)", n))
			}
		}
	}
}
