package ptypes

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"go.uber.org/zap"

	"github.com/temirov/sierra-ptype/internal/sierra"
)

const (
	runIdentifierFieldNameConstant         = "run_id"
	adultAgeFieldNameConstant              = "adult_age"
	minimumAdultBirthdateFieldNameConstant = "min_adult_birthdate"
	batchSizeFieldNameConstant             = "batch_size"
	applyChangesFieldNameConstant          = "apply_changes"
	continueOnErrorFieldNameConstant       = "continue_on_error"
	pairCountFieldNameConstant             = "pair_count"
	juvenilePTypeFieldNameConstant         = "juvenile_ptype"
	adultPTypeFieldNameConstant            = "adult_ptype"
	patronIdentifierFieldNameConstant      = "patron_id"
	patronsFoundFieldNameConstant          = "patrons_found"
	patronsUpdatedFieldNameConstant        = "patrons_updated"
	failedPairsFieldNameConstant           = "failed_pairs"
	runStartMessageTemplateConstant        = "START: Updating PType for juvenile patrons who have reached age %d."
	runEndMessageConstant                  = "END: Finished updating PTypes."
	runAbortedMessageConstant              = "Run aborted after a failed PType pair"
	pairStartMessageTemplateConstant       = "Changing PType %d to %d ..."
	pairFoundMessageTemplateConstant       = "Found %d PType %d patrons over age %d"
	patronChangeMessageTemplateConstant    = "Changing patron %s from PType %d to %d"
	patronDryRunMessageConstant            = "Dry run: PType left unchanged"
	pairFailedMessageConstant              = "PType pair failed"
	directoryMissingMessageConstant        = "patron directory not configured"
	pairsMissingMessageConstant            = "at least one PType pair required"
	pairsOptionFieldConstant               = "pairs"
	pairErrorTemplateConstant              = "PType %d to %d: %v"
	queryPairErrorTemplateConstant         = "query failed: %w"
	updatePatronErrorTemplateConstant      = "update of patron %s failed: %w"
)

var errPatronDirectoryMissing = errors.New(directoryMissingMessageConstant)

// PatronDirectory is the subset of the Sierra client used by the job.
type PatronDirectory interface {
	QueryPatrons(executionContext context.Context, query sierra.PatronQuery, offset int, limit int) (sierra.QueryResult, error)
	UpdatePatronType(executionContext context.Context, patronLink string, patronType int) error
}

// ServiceDependencies describes required collaborators for the migration.
type ServiceDependencies struct {
	Logger        *zap.Logger
	Directory     PatronDirectory
	Metrics       *RunMetrics
	Clock         func() time.Time
	RunIdentifier func() string
}

// RunOptions configures a single run.
type RunOptions struct {
	Pairs           []Pair
	AdultAge        int
	BatchSize       int
	ApplyChanges    bool
	ContinueOnError bool
}

// PairOutcome captures what happened to one PType pair.
type PairOutcome struct {
	Pair      Pair
	Found     int
	PatronIDs []string
	Updated   int
	Error     error
}

// RunResult captures the observable outcomes of a run.
type RunResult struct {
	RunIdentifier         string
	MinimumAdultBirthdate string
	Pairs                 []PairOutcome
}

// TotalFound sums the totals reported by every query.
func (result RunResult) TotalFound() int {
	totalFound := 0
	for _, outcome := range result.Pairs {
		totalFound += outcome.Found
	}
	return totalFound
}

// TotalUpdated sums the patrons changed in apply mode.
func (result RunResult) TotalUpdated() int {
	totalUpdated := 0
	for _, outcome := range result.Pairs {
		totalUpdated += outcome.Updated
	}
	return totalUpdated
}

// FailedPairs counts pairs that ended with an error.
func (result RunResult) FailedPairs() int {
	failedPairs := 0
	for _, outcome := range result.Pairs {
		if outcome.Error != nil {
			failedPairs++
		}
	}
	return failedPairs
}

// PairError attributes a failure to the PType pair that produced it.
type PairError struct {
	Pair  Pair
	Cause error
}

// Error describes the failed pair.
func (pairError PairError) Error() string {
	return fmt.Sprintf(pairErrorTemplateConstant, pairError.Pair.Juvenile, pairError.Pair.Adult, pairError.Cause)
}

// Unwrap exposes the underlying failure.
func (pairError PairError) Unwrap() error {
	return pairError.Cause
}

// Service migrates juvenile patrons to their adult PType.
type Service struct {
	logger        *zap.Logger
	directory     PatronDirectory
	metrics       *RunMetrics
	clock         func() time.Time
	runIdentifier func() string
}

// NewService constructs a Service with the provided dependencies.
func NewService(dependencies ServiceDependencies) (*Service, error) {
	if dependencies.Directory == nil {
		return nil, errPatronDirectoryMissing
	}

	logger := dependencies.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	clock := dependencies.Clock
	if clock == nil {
		clock = time.Now
	}

	runIdentifier := dependencies.RunIdentifier
	if runIdentifier == nil {
		runIdentifier = uuid.NewString
	}

	return &Service{
		logger:        logger,
		directory:     dependencies.Directory,
		metrics:       dependencies.Metrics,
		clock:         clock,
		runIdentifier: runIdentifier,
	}, nil
}

// Execute runs every pair in order. Unless ContinueOnError is set the run
// stops at the first failed pair and returns its PairError; otherwise all
// pairs run and the failures are returned together.
func (service *Service) Execute(executionContext context.Context, options RunOptions) (RunResult, error) {
	if validationError := validateRunOptions(options); validationError != nil {
		return RunResult{}, validationError
	}

	minimumAdultBirthdate := MinimumAdultBirthdate(service.clock(), options.AdultAge)
	result := RunResult{
		RunIdentifier:         service.runIdentifier(),
		MinimumAdultBirthdate: minimumAdultBirthdate,
		Pairs:                 make([]PairOutcome, 0, len(options.Pairs)),
	}

	runLogger := service.logger.With(zap.String(runIdentifierFieldNameConstant, result.RunIdentifier))
	runLogger.Info(
		fmt.Sprintf(runStartMessageTemplateConstant, options.AdultAge),
		zap.Int(adultAgeFieldNameConstant, options.AdultAge),
		zap.String(minimumAdultBirthdateFieldNameConstant, minimumAdultBirthdate),
		zap.Int(batchSizeFieldNameConstant, options.BatchSize),
		zap.Bool(applyChangesFieldNameConstant, options.ApplyChanges),
		zap.Bool(continueOnErrorFieldNameConstant, options.ContinueOnError),
		zap.Int(pairCountFieldNameConstant, len(options.Pairs)),
	)

	var pairFailures *multierror.Error
	for _, pair := range options.Pairs {
		if contextError := executionContext.Err(); contextError != nil {
			return service.finish(runLogger, result), contextError
		}

		outcome := service.migratePair(executionContext, runLogger, pair, minimumAdultBirthdate, options)
		result.Pairs = append(result.Pairs, outcome)
		service.metrics.ObservePair(outcome)

		if outcome.Error == nil {
			continue
		}

		pairError := PairError{Pair: pair, Cause: outcome.Error}
		runLogger.Error(
			pairFailedMessageConstant,
			zap.Int(juvenilePTypeFieldNameConstant, pair.Juvenile),
			zap.Int(adultPTypeFieldNameConstant, pair.Adult),
			zap.Error(outcome.Error),
		)

		if !options.ContinueOnError {
			runLogger.Error(runAbortedMessageConstant)
			return service.finish(runLogger, result), pairError
		}
		pairFailures = multierror.Append(pairFailures, pairError)
	}

	return service.finish(runLogger, result), pairFailures.ErrorOrNil()
}

func (service *Service) migratePair(executionContext context.Context, runLogger *zap.Logger, pair Pair, minimumAdultBirthdate string, options RunOptions) PairOutcome {
	outcome := PairOutcome{Pair: pair}
	pairLogger := runLogger.With(
		zap.Int(juvenilePTypeFieldNameConstant, pair.Juvenile),
		zap.Int(adultPTypeFieldNameConstant, pair.Adult),
	)

	pairLogger.Info(fmt.Sprintf(pairStartMessageTemplateConstant, pair.Juvenile, pair.Adult))

	query := sierra.PatronTypeBornByQuery(pair.Juvenile, minimumAdultBirthdate)
	queryResult, queryError := service.directory.QueryPatrons(executionContext, query, 0, options.BatchSize)
	if queryError != nil {
		outcome.Error = fmt.Errorf(queryPairErrorTemplateConstant, queryError)
		return outcome
	}

	outcome.Found = queryResult.Total
	pairLogger.Info(fmt.Sprintf(pairFoundMessageTemplateConstant, queryResult.Total, pair.Juvenile, options.AdultAge))

	if queryResult.Total <= 0 {
		return outcome
	}

	for _, patron := range queryResult.Entries {
		patronIdentifier := patron.ID()
		outcome.PatronIDs = append(outcome.PatronIDs, patronIdentifier)

		patronLogger := pairLogger.With(zap.String(patronIdentifierFieldNameConstant, patronIdentifier))
		patronLogger.Info(fmt.Sprintf(patronChangeMessageTemplateConstant, patronIdentifier, pair.Juvenile, pair.Adult))

		if !options.ApplyChanges {
			patronLogger.Debug(patronDryRunMessageConstant)
			continue
		}

		if updateError := service.directory.UpdatePatronType(executionContext, patron.Link, pair.Adult); updateError != nil {
			outcome.Error = fmt.Errorf(updatePatronErrorTemplateConstant, patronIdentifier, updateError)
			return outcome
		}
		outcome.Updated++
	}

	return outcome
}

func (service *Service) finish(runLogger *zap.Logger, result RunResult) RunResult {
	service.metrics.MarkCompleted(service.clock())
	runLogger.Info(
		runEndMessageConstant,
		zap.Int(patronsFoundFieldNameConstant, result.TotalFound()),
		zap.Int(patronsUpdatedFieldNameConstant, result.TotalUpdated()),
		zap.Int(failedPairsFieldNameConstant, result.FailedPairs()),
	)
	return result
}

func validateRunOptions(options RunOptions) error {
	if len(options.Pairs) == 0 {
		return ConfigurationError{Field: pairsOptionFieldConstant, Message: pairsMissingMessageConstant}
	}
	if options.BatchSize <= 0 {
		return ConfigurationError{Field: batchSizeConfigurationKeyConstant, Message: positiveIntegerMessageConstant}
	}
	if options.AdultAge <= 0 {
		return ConfigurationError{Field: adultAgeConfigurationKeyConstant, Message: positiveIntegerMessageConstant}
	}
	return nil
}
