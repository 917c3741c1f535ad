package ptypes_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/temirov/sierra-ptype/internal/ptypes"
	"github.com/temirov/sierra-ptype/internal/sierra"
)

const (
	testRunIdentifierConstant    = "run-identifier"
	testPatronLinkPrefixConstant = "https://catalog.example.org/iii/sierra-api/v6/patrons/"
	testRunStartMessageConstant  = "START: Updating PType for juvenile patrons who have reached age 18."
	testRunEndMessageConstant    = "END: Finished updating PTypes."
)

type recordedQuery struct {
	patronType string
	birthdate  string
	offset     int
	limit      int
}

type recordedUpdate struct {
	link       string
	patronType int
}

type stubPatronDirectory struct {
	results      map[string]sierra.QueryResult
	queryErrors  map[string]error
	updateErrors map[string]error
	queries      []recordedQuery
	updates      []recordedUpdate
}

func (directory *stubPatronDirectory) QueryPatrons(_ context.Context, query sierra.PatronQuery, offset int, limit int) (sierra.QueryResult, error) {
	patronTypeClause := query.Queries[0].(sierra.QueryClause)
	birthdateClause := query.Queries[2].(sierra.QueryClause)
	patronType := patronTypeClause.Expression.Operands[0]

	directory.queries = append(directory.queries, recordedQuery{
		patronType: patronType,
		birthdate:  birthdateClause.Expression.Operands[0],
		offset:     offset,
		limit:      limit,
	})

	if queryError, exists := directory.queryErrors[patronType]; exists {
		return sierra.QueryResult{}, queryError
	}
	return directory.results[patronType], nil
}

func (directory *stubPatronDirectory) UpdatePatronType(_ context.Context, patronLink string, patronType int) error {
	directory.updates = append(directory.updates, recordedUpdate{link: patronLink, patronType: patronType})
	return directory.updateErrors[patronLink]
}

func patronEntries(identifiers ...string) []sierra.Patron {
	entries := make([]sierra.Patron, 0, len(identifiers))
	for _, identifier := range identifiers {
		entries = append(entries, sierra.Patron{Link: testPatronLinkPrefixConstant + identifier})
	}
	return entries
}

func fixedClock() func() time.Time {
	return func() time.Time {
		return time.Date(2024, time.June, 15, 8, 0, 0, 0, time.UTC)
	}
}

func newTestService(testInstance *testing.T, directory ptypes.PatronDirectory, logger *zap.Logger, clock func() time.Time, metrics *ptypes.RunMetrics) *ptypes.Service {
	testInstance.Helper()
	service, serviceError := ptypes.NewService(ptypes.ServiceDependencies{
		Logger:        logger,
		Directory:     directory,
		Metrics:       metrics,
		Clock:         clock,
		RunIdentifier: func() string { return testRunIdentifierConstant },
	})
	require.NoError(testInstance, serviceError)
	return service
}

func defaultRunOptions() ptypes.RunOptions {
	return ptypes.RunOptions{
		Pairs:     []ptypes.Pair{{Juvenile: 10, Adult: 15}, {Juvenile: 11, Adult: 16}},
		AdultAge:  18,
		BatchSize: 25,
	}
}

func TestNewServiceRequiresDirectory(testInstance *testing.T) {
	service, serviceError := ptypes.NewService(ptypes.ServiceDependencies{})
	require.Error(testInstance, serviceError)
	require.Nil(testInstance, service)
}

func TestServiceExecuteDryRun(testInstance *testing.T) {
	directory := &stubPatronDirectory{
		results: map[string]sierra.QueryResult{
			"10": {Total: 2, Entries: patronEntries("1001", "1002")},
			"11": {Total: 0},
		},
	}
	observedCore, observedLogs := observer.New(zapcore.DebugLevel)
	service := newTestService(testInstance, directory, zap.New(observedCore), fixedClock(), nil)

	result, executionError := service.Execute(context.Background(), defaultRunOptions())
	require.NoError(testInstance, executionError)

	require.Equal(testInstance, []recordedQuery{
		{patronType: "10", birthdate: "06-15-2006", offset: 0, limit: 25},
		{patronType: "11", birthdate: "06-15-2006", offset: 0, limit: 25},
	}, directory.queries)
	require.Empty(testInstance, directory.updates)

	require.Equal(testInstance, testRunIdentifierConstant, result.RunIdentifier)
	require.Equal(testInstance, "06-15-2006", result.MinimumAdultBirthdate)
	require.Len(testInstance, result.Pairs, 2)
	require.Equal(testInstance, []string{"1001", "1002"}, result.Pairs[0].PatronIDs)
	require.Empty(testInstance, result.Pairs[1].PatronIDs)
	require.Equal(testInstance, 2, result.TotalFound())
	require.Equal(testInstance, 0, result.TotalUpdated())
	require.Equal(testInstance, 0, result.FailedPairs())

	entries := observedLogs.AllUntimed()
	require.NotEmpty(testInstance, entries)
	require.Equal(testInstance, testRunStartMessageConstant, entries[0].Message)
	require.Equal(testInstance, testRunEndMessageConstant, entries[len(entries)-1].Message)
	for _, entry := range entries {
		require.Equal(testInstance, testRunIdentifierConstant, entry.ContextMap()["run_id"])
	}

	require.Equal(testInstance, 1, observedLogs.FilterMessage("Changing PType 10 to 15 ...").Len())
	require.Equal(testInstance, 1, observedLogs.FilterMessage("Found 2 PType 10 patrons over age 18").Len())
	require.Equal(testInstance, 1, observedLogs.FilterMessage("Found 0 PType 11 patrons over age 18").Len())
	require.Equal(testInstance, 1, observedLogs.FilterMessage("Changing patron 1001 from PType 10 to 15").Len())
	require.Equal(testInstance, 1, observedLogs.FilterMessage("Changing patron 1002 from PType 10 to 15").Len())
	require.Zero(testInstance, observedLogs.FilterMessageSnippet("from PType 11").Len())
}

func TestServiceExecuteApplyUpdatesEveryEntry(testInstance *testing.T) {
	directory := &stubPatronDirectory{
		results: map[string]sierra.QueryResult{
			"10": {Total: 2, Entries: patronEntries("1001", "1002")},
			"11": {Total: 1, Entries: patronEntries("2001")},
		},
	}
	service := newTestService(testInstance, directory, zap.NewNop(), fixedClock(), nil)

	runOptions := defaultRunOptions()
	runOptions.ApplyChanges = true
	result, executionError := service.Execute(context.Background(), runOptions)
	require.NoError(testInstance, executionError)

	require.Equal(testInstance, []recordedUpdate{
		{link: testPatronLinkPrefixConstant + "1001", patronType: 15},
		{link: testPatronLinkPrefixConstant + "1002", patronType: 15},
		{link: testPatronLinkPrefixConstant + "2001", patronType: 16},
	}, directory.updates)
	require.Equal(testInstance, 3, result.TotalUpdated())
}

func TestServiceExecuteZeroTotalSkipsEntries(testInstance *testing.T) {
	directory := &stubPatronDirectory{
		results: map[string]sierra.QueryResult{
			"10": {Total: 0, Entries: patronEntries("1001")},
		},
	}
	service := newTestService(testInstance, directory, zap.NewNop(), fixedClock(), nil)

	runOptions := defaultRunOptions()
	runOptions.Pairs = runOptions.Pairs[:1]
	runOptions.ApplyChanges = true
	result, executionError := service.Execute(context.Background(), runOptions)
	require.NoError(testInstance, executionError)
	require.Empty(testInstance, directory.updates)
	require.Empty(testInstance, result.Pairs[0].PatronIDs)
}

func TestServiceExecuteComputesBirthdateOnce(testInstance *testing.T) {
	directory := &stubPatronDirectory{}
	clockCalls := 0
	advancingClock := func() time.Time {
		clockCalls++
		return time.Date(2024, time.June, 15, 0, 0, 0, 0, time.UTC).AddDate(0, 0, clockCalls)
	}
	service := newTestService(testInstance, directory, zap.NewNop(), advancingClock, nil)

	runOptions := defaultRunOptions()
	runOptions.Pairs = []ptypes.Pair{{Juvenile: 1, Adult: 2}, {Juvenile: 3, Adult: 4}, {Juvenile: 5, Adult: 6}}
	_, executionError := service.Execute(context.Background(), runOptions)
	require.NoError(testInstance, executionError)

	require.Len(testInstance, directory.queries, 3)
	for _, query := range directory.queries {
		require.Equal(testInstance, "06-16-2006", query.birthdate)
	}
}

func TestServiceExecuteFailurePolicy(testInstance *testing.T) {
	queryFailure := sierra.RequestError{Operation: sierra.OperationQueryPatrons, StatusCode: 500, Body: "boom"}

	testCases := []struct {
		name               string
		continueOnError    bool
		expectedQueried    []string
		expectedOutcomes   int
		expectMultipleErrs bool
	}{
		{
			name:             "abort_on_first_failure",
			continueOnError:  false,
			expectedQueried:  []string{"1", "2"},
			expectedOutcomes: 2,
		},
		{
			name:               "continue_on_error",
			continueOnError:    true,
			expectedQueried:    []string{"1", "2", "3", "4"},
			expectedOutcomes:   4,
			expectMultipleErrs: true,
		},
	}

	for _, testCase := range testCases {
		testInstance.Run(testCase.name, func(testInstance *testing.T) {
			directory := &stubPatronDirectory{
				results: map[string]sierra.QueryResult{
					"1": {Total: 1, Entries: patronEntries("1001")},
					"3": {Total: 1, Entries: patronEntries("3001")},
				},
				queryErrors: map[string]error{"2": queryFailure, "4": queryFailure},
			}
			service := newTestService(testInstance, directory, zap.NewNop(), fixedClock(), nil)

			runOptions := defaultRunOptions()
			runOptions.Pairs = []ptypes.Pair{{Juvenile: 1, Adult: 5}, {Juvenile: 2, Adult: 6}, {Juvenile: 3, Adult: 7}, {Juvenile: 4, Adult: 8}}
			runOptions.ContinueOnError = testCase.continueOnError

			result, executionError := service.Execute(context.Background(), runOptions)
			require.Error(testInstance, executionError)

			queried := make([]string, 0, len(directory.queries))
			for _, query := range directory.queries {
				queried = append(queried, query.patronType)
			}
			require.Equal(testInstance, testCase.expectedQueried, queried)
			require.Len(testInstance, result.Pairs, testCase.expectedOutcomes)

			var pairError ptypes.PairError
			require.True(testInstance, errors.As(executionError, &pairError))
			require.Equal(testInstance, ptypes.Pair{Juvenile: 2, Adult: 6}, pairError.Pair)

			var requestError sierra.RequestError
			require.True(testInstance, errors.As(executionError, &requestError))
			require.Equal(testInstance, 500, requestError.StatusCode)

			var combined *multierror.Error
			if testCase.expectMultipleErrs {
				require.True(testInstance, errors.As(executionError, &combined))
				require.Len(testInstance, combined.Errors, 2)
				require.Equal(testInstance, 2, result.FailedPairs())
			} else {
				require.False(testInstance, errors.As(executionError, &combined))
				require.Equal(testInstance, 1, result.FailedPairs())
			}
		})
	}
}

func TestServiceExecuteUpdateFailureStopsPair(testInstance *testing.T) {
	failingLink := testPatronLinkPrefixConstant + "1002"
	directory := &stubPatronDirectory{
		results: map[string]sierra.QueryResult{
			"10": {Total: 3, Entries: patronEntries("1001", "1002", "1003")},
		},
		updateErrors: map[string]error{failingLink: sierra.RequestError{Operation: sierra.OperationUpdatePatronType, StatusCode: 400}},
	}
	service := newTestService(testInstance, directory, zap.NewNop(), fixedClock(), nil)

	runOptions := defaultRunOptions()
	runOptions.ApplyChanges = true
	result, executionError := service.Execute(context.Background(), runOptions)
	require.Error(testInstance, executionError)
	require.Contains(testInstance, executionError.Error(), "1002")
	require.Len(testInstance, directory.updates, 2)
	require.Len(testInstance, directory.queries, 1)
	require.Equal(testInstance, 1, result.Pairs[0].Updated)
}

func TestServiceExecuteRejectsInvalidOptions(testInstance *testing.T) {
	directory := &stubPatronDirectory{}
	service := newTestService(testInstance, directory, zap.NewNop(), fixedClock(), nil)

	testCases := []struct {
		name   string
		mutate func(*ptypes.RunOptions)
	}{
		{name: "no_pairs", mutate: func(options *ptypes.RunOptions) { options.Pairs = nil }},
		{name: "zero_batch", mutate: func(options *ptypes.RunOptions) { options.BatchSize = 0 }},
		{name: "zero_age", mutate: func(options *ptypes.RunOptions) { options.AdultAge = 0 }},
	}

	for _, testCase := range testCases {
		testInstance.Run(testCase.name, func(testInstance *testing.T) {
			runOptions := defaultRunOptions()
			testCase.mutate(&runOptions)

			_, executionError := service.Execute(context.Background(), runOptions)
			var configurationError ptypes.ConfigurationError
			require.True(testInstance, errors.As(executionError, &configurationError))
			require.Empty(testInstance, directory.queries)
		})
	}
}

func TestServiceExecuteStopsOnCancelledContext(testInstance *testing.T) {
	directory := &stubPatronDirectory{}
	service := newTestService(testInstance, directory, zap.NewNop(), fixedClock(), nil)

	cancelledContext, cancel := context.WithCancel(context.Background())
	cancel()

	_, executionError := service.Execute(cancelledContext, defaultRunOptions())
	require.ErrorIs(testInstance, executionError, context.Canceled)
	require.Empty(testInstance, directory.queries)
}

func TestServiceExecuteRecordsMetrics(testInstance *testing.T) {
	directory := &stubPatronDirectory{
		results: map[string]sierra.QueryResult{
			"10": {Total: 2, Entries: patronEntries("1001", "1002")},
		},
		queryErrors: map[string]error{"11": errors.New("connection reset")},
	}
	runMetrics := ptypes.NewRunMetrics()
	service := newTestService(testInstance, directory, zap.NewNop(), fixedClock(), runMetrics)

	runOptions := defaultRunOptions()
	runOptions.ApplyChanges = true
	runOptions.ContinueOnError = true
	_, executionError := service.Execute(context.Background(), runOptions)
	require.Error(testInstance, executionError)

	families, gatherError := runMetrics.Gatherer().Gather()
	require.NoError(testInstance, gatherError)

	values := map[string]float64{}
	for _, family := range families {
		for _, metric := range family.GetMetric() {
			labelSuffix := ""
			for _, label := range metric.GetLabel() {
				if label.GetName() == "juvenile_ptype" {
					labelSuffix = "/" + label.GetValue()
				}
			}
			switch {
			case metric.GetCounter() != nil:
				values[family.GetName()+labelSuffix] = metric.GetCounter().GetValue()
			case metric.GetGauge() != nil:
				values[family.GetName()+labelSuffix] = metric.GetGauge().GetValue()
			}
		}
	}

	require.Equal(testInstance, float64(2), values["sierra_ptype_patrons_found_total/10"])
	require.Equal(testInstance, float64(2), values["sierra_ptype_patrons_updated_total/10"])
	require.Equal(testInstance, float64(1), values["sierra_ptype_pair_failures_total/11"])
	require.Equal(testInstance, float64(fixedClock()().Unix()), values["sierra_ptype_last_run_timestamp_seconds"])
	require.NotContains(testInstance, values, "sierra_ptype_pair_failures_total/10")
}
