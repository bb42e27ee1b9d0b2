// Package command contains write operations (CQRS - Commands).
package command

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/practica-musical/progression-hub/internal/domain/shared"
	"github.com/practica-musical/progression-hub/pkg/logger"
	"github.com/practica-musical/progression-hub/pkg/retry"
)

// ══════════════════════════════════════════════════════════════════════════════
// HANDLER OPTIONS
// ══════════════════════════════════════════════════════════════════════════════

// Options carries the collaborators every handler shares.
type Options struct {
	Logger *logger.Logger

	// Retrier re-runs read-modify-write cycles that lost a version race.
	Retrier *retry.Retrier

	// Now returns the current time. Defaults to time.Now in UTC.
	Now func() time.Time
}

// DefaultConflictAttempts bounds the read-modify-write retries.
const DefaultConflictAttempts = 5

// ConflictRetrier re-runs operations that lost a version race and logs each
// retry at debug level.
func ConflictRetrier(log *logger.Logger, attempts int) *retry.Retrier {
	if log == nil {
		log = logger.Nop()
	}
	return retry.ConflictRetrier(shared.IsConcurrentModification, attempts).With(
		retry.WithOnRetry(func(attempt int, err error, delay time.Duration) {
			log.Debug("write conflict, retrying",
				logger.Attempt(attempt),
				logger.Duration("delay", delay),
				logger.Err(err),
			)
		}),
	)
}

func (o Options) withDefaults() Options {
	if o.Logger == nil {
		o.Logger = logger.Nop()
	}
	if o.Retrier == nil {
		o.Retrier = ConflictRetrier(o.Logger, DefaultConflictAttempts)
	}
	if o.Now == nil {
		o.Now = func() time.Time { return time.Now().UTC() }
	}
	return o
}

// publish sends an event and logs instead of failing the command: the write
// has already happened.
func publish(p shared.EventPublisher, log *logger.Logger, event shared.Event) {
	if p == nil {
		return
	}
	if err := p.Publish(event); err != nil {
		log.Warn("event publish failed",
			logger.EventType(string(event.EventType())),
			logger.Err(err),
		)
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// VALIDATION
// ══════════════════════════════════════════════════════════════════════════════

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("skill", func(fl validator.FieldLevel) bool {
		return shared.Skill(fl.Field().String()).IsValid()
	})
	_ = v.RegisterValidation("xpsource", func(fl validator.FieldLevel) bool {
		return shared.Source(fl.Field().String()).IsValid()
	})
	_ = v.RegisterValidation("finite", func(fl validator.FieldLevel) bool {
		f := fl.Field().Float()
		return !math.IsNaN(f) && !math.IsInf(f, 0)
	})
	return v
}

// validateStruct runs the struct tags and maps the first failure onto the
// domain error taxonomy.
func validateStruct(op string, s any) error {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return shared.WrapError("command", op, shared.ErrInvalidInput, "invalid command", err)
	}

	fe := verrs[0]
	switch fe.Tag() {
	case "skill":
		return shared.ErrUnknownSkill
	case "xpsource":
		return shared.ErrUnknownSource
	case "finite":
		return shared.ErrInvalidXPAmount
	}
	if fe.Field() == "StudentID" && fe.Tag() == "required" {
		return shared.ErrEmptyStudentID
	}
	return shared.NewDomainError("command", op, shared.ErrInvalidInput,
		fmt.Sprintf("%s failed on %q", fe.Field(), fe.Tag()))
}

func normalizeSkill(s shared.Skill) shared.Skill {
	return shared.Skill(strings.ToLower(strings.TrimSpace(string(s))))
}

func normalizeSource(s shared.Source) shared.Source {
	return shared.Source(strings.ToUpper(strings.TrimSpace(string(s))))
}
