package normalizer

import (
	"fmt"
	"strings"
	"time"

	"github.com/Gobusters/ectolinq"

	"github.com/LightningDocs/monthly-double-checker-v2/pkg/attribution"
	"github.com/LightningDocs/monthly-double-checker-v2/pkg/expressions"
	"github.com/LightningDocs/monthly-double-checker-v2/pkg/models"
	"github.com/LightningDocs/monthly-double-checker-v2/pkg/value"
)

const (
	// DefaultTestFileExpression selects the flag marking a record as a test file
	DefaultTestFileExpression = "isTestFile"

	apiUserSuffix = "_api"
)

// Normalizer turns freshly fetched records into sink documents
type Normalizer struct {
	evaluator          *expressions.Evaluator
	testFileExpression string
	clock              func() time.Time
}

// Option customises a Normalizer
type Option func(*Normalizer)

// WithClock overrides the time source used for internally_modified
func WithClock(clock func() time.Time) Option {
	return func(n *Normalizer) {
		n.clock = clock
	}
}

// WithTestFileExpression overrides the expression evaluated against record data to detect test files
func WithTestFileExpression(expression string) Option {
	return func(n *Normalizer) {
		n.testFileExpression = expression
	}
}

// NewNormalizer creates a normalizer. It fails when the test file expression does not compile.
func NewNormalizer(evaluator *expressions.Evaluator, opts ...Option) (*Normalizer, error) {
	n := &Normalizer{
		evaluator:          evaluator,
		testFileExpression: DefaultTestFileExpression,
		clock:              func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(n)
	}

	if err := evaluator.Compile(n.testFileExpression); err != nil {
		return nil, fmt.Errorf("test file expression: %w", err)
	}
	return n, nil
}

// Now returns the current time from the normalizer's clock
func (n *Normalizer) Now() time.Time {
	return n.clock()
}

// Normalize builds the document inserted the first time a record is seen
func (n *Normalizer) Normalize(detail models.RecordDetail, catalog string) models.RecordDocument {
	snapshot := n.Snapshot(detail, catalog)

	return models.RecordDocument{
		RecordID:           detail.ID,
		Catalog:            catalog,
		Timeline:           []models.RecordDetail{snapshot},
		Billing:            n.Billing(snapshot, nil),
		ResponsibleApp:     snapshot.ResponsibleApp,
		InternallyModified: n.clock(),
	}
}

// Snapshot copies detail and stamps it with the catalog, per-app annotations and the
// responsible app. The input is left untouched.
func (n *Normalizer) Snapshot(detail models.RecordDetail, catalog string) models.RecordDetail {
	snapshot := detail.Clone()
	snapshot.Catalog = catalog

	userType := UserTypeFor(detail.LastRunBy)
	for i := range snapshot.Apps {
		if !detail.Created.IsZero() {
			created := detail.Created
			snapshot.Apps[i].CreatedDate = &created
		}
		snapshot.Apps[i].UserType = userType
	}

	snapshot.ResponsibleApp = attribution.ResolveResponsibleApp(snapshot.Apps)
	return snapshot
}

// Billing appends a null billing entry for every app in snapshot not already present in
// existing. Existing entries are kept as they are. Test files add nothing.
func (n *Normalizer) Billing(snapshot models.RecordDetail, existing []models.BillingEntry) []models.BillingEntry {
	billing := make([]models.BillingEntry, 0, len(existing)+len(snapshot.Apps))
	billing = append(billing, existing...)

	if n.IsTestFile(snapshot.Data) {
		return billing
	}

	known := ectolinq.Map(billing, func(entry models.BillingEntry) string { return entry.App })
	for _, name := range snapshot.AppNames() {
		if ectolinq.Contains(known, name) {
			continue
		}
		known = append(known, name)
		billing = append(billing, models.BillingEntry{App: name})
	}
	return billing
}

// IsTestFile reports whether the record data marks it as a test file
func (n *Normalizer) IsTestFile(data value.Value) bool {
	isTest, err := n.evaluator.EvaluateBool(n.testFileExpression, data)
	if err != nil {
		return false
	}
	return isTest
}

// UserTypeFor classifies the principal that last ran a record
func UserTypeFor(lastRunBy string) models.UserType {
	if strings.HasSuffix(lastRunBy, apiUserSuffix) {
		return models.UserTypeAPI
	}
	return models.UserTypeRegular
}
