package waiver

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/trailhead/waivers/internal/signature"
)

// Submitter receives the final record exactly once.
type Submitter interface {
	Submit(ctx context.Context, r Record) error
}

// DraftSaver persists partial records. Calls may arrive from the autosave
// loop and from manual saves; the latest call wins.
type DraftSaver interface {
	SaveDraft(ctx context.Context, r Record) error
}

// Role identifies whose signature a pad captures.
type Role string

const (
	RoleParticipant Role = "participant"
	RoleGuardian    Role = "guardian"
)

var (
	ErrInvalid           = errors.New("waiver has invalid fields")
	ErrAlreadySubmitted  = errors.New("waiver already submitted")
	ErrSubmitInProgress  = errors.New("waiver submission in progress")
	ErrNotOnFinalSection = errors.New("submit is only available on the signature section")
	ErrUnknownRole       = errors.New("unknown signer role")
)

// DefaultSavingIndicator is how long IsSaving stays true after a manual save.
const DefaultSavingIndicator = 2 * time.Second

// Wizard walks one participant through the ten sections. It is safe for
// concurrent use; section transitions are serialised by its mutex.
type Wizard struct {
	mu          sync.Mutex
	section     Section
	record      Record
	errors      Errors
	savingUntil time.Time
	submitting  bool
	submitted   bool
	submitErr   string
	draftErr    string
	lastDraftAt *time.Time
	pads        map[Role]*signature.Pad

	// held for the duration of a draft save; autosave skips when busy
	saveMu sync.Mutex

	submitter Submitter
	drafts    DraftSaver
	now       func() time.Time
	indicator time.Duration
	padW      int
	padH      int
}

type Option func(*Wizard)

// WithDraftSaver enables manual and automatic draft saves.
func WithDraftSaver(d DraftSaver) Option { return func(w *Wizard) { w.drafts = d } }

func WithClock(now func() time.Time) Option { return func(w *Wizard) { w.now = now } }

func WithSavingIndicator(d time.Duration) Option { return func(w *Wizard) { w.indicator = d } }

func WithPadSize(width, height int) Option {
	return func(w *Wizard) { w.padW, w.padH = width, height }
}

// New starts a wizard on section 1. prefill is an optional JSON object merged
// over the defaults.
func New(tour TourContext, prefill []byte, submitter Submitter, opts ...Option) (*Wizard, error) {
	if submitter == nil {
		return nil, errors.New("waiver: nil submitter")
	}
	w := &Wizard{
		section:   FirstSection,
		record:    NewRecord(tour),
		errors:    Errors{},
		submitter: submitter,
		now:       time.Now,
		indicator: DefaultSavingIndicator,
	}
	for _, opt := range opts {
		opt(w)
	}
	w.pads = map[Role]*signature.Pad{
		RoleParticipant: signature.NewPad(w.padW, w.padH),
		RoleGuardian:    signature.NewPad(w.padW, w.padH),
	}
	if err := w.record.Merge(prefill); err != nil {
		return nil, errors.Wrap(err, "prefill")
	}
	return w, nil
}

// Update merges a JSON object of field values into the record and clears
// the errors of the fields it touches.
func (w *Wizard) Update(patch []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	switch {
	case w.submitted:
		return ErrAlreadySubmitted
	case w.submitting:
		return ErrSubmitInProgress
	}
	if err := w.record.Merge(patch); err != nil {
		return err
	}
	for _, f := range patchedFields(patch) {
		delete(w.errors, f)
	}
	return nil
}

// Continue validates the current section and advances when it has no
// errors. The signature section is terminal: it validates but never
// advances; use Submit.
func (w *Wizard) Continue() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.submitted {
		return false
	}
	w.errors = Validate(w.section, w.record)
	if len(w.errors) > 0 || w.section == LastSection {
		return false
	}
	w.section++
	return true
}

// Previous steps back one section without validating. Entered data is kept.
func (w *Wizard) Previous() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.submitted || w.section == FirstSection {
		return false
	}
	w.section--
	w.errors = Errors{}
	return true
}

// Submit validates the whole record from the signature section, stamps the
// signature and submission times and hands the record to the submitter. A
// failed hand-off is reported in the view and may be retried.
func (w *Wizard) Submit(ctx context.Context) error {
	w.mu.Lock()
	switch {
	case w.submitted:
		w.mu.Unlock()
		return ErrAlreadySubmitted
	case w.submitting:
		w.mu.Unlock()
		return ErrSubmitInProgress
	case w.section != LastSection:
		w.mu.Unlock()
		return ErrNotOnFinalSection
	}
	w.errors = w.record.Complete()
	if len(w.errors) > 0 {
		w.mu.Unlock()
		return ErrInvalid
	}
	now := w.now().UTC()
	final := w.record.Clone()
	final.SignatureDate = &now
	final.SubmittedAt = &now
	w.submitting = true
	w.mu.Unlock()

	err := w.submitter.Submit(ctx, final)

	w.mu.Lock()
	defer w.mu.Unlock()
	w.submitting = false
	if err != nil {
		w.submitErr = err.Error()
		return errors.Wrap(err, "submit waiver")
	}
	w.record = final
	w.submitted = true
	w.submitErr = ""
	return nil
}

// SaveDraft persists the current record immediately, whatever its
// validation state, and raises the saving indicator.
func (w *Wizard) SaveDraft(ctx context.Context) error {
	if w.drafts == nil {
		return nil
	}
	w.mu.Lock()
	w.savingUntil = w.now().Add(w.indicator)
	w.mu.Unlock()

	w.saveMu.Lock()
	defer w.saveMu.Unlock()
	return w.saveDraftLocked(ctx)
}

// autosave is SaveDraft for the background loop: it skips when a draft save
// is already in flight, while a submit is running and once the waiver is
// final. It does not touch the indicator.
func (w *Wizard) autosave(ctx context.Context) (bool, error) {
	if w.drafts == nil || !w.saveMu.TryLock() {
		return false, nil
	}
	defer w.saveMu.Unlock()
	w.mu.Lock()
	busy := w.submitted || w.submitting
	w.mu.Unlock()
	if busy {
		return false, nil
	}
	return true, w.saveDraftLocked(ctx)
}

func (w *Wizard) saveDraftLocked(ctx context.Context) error {
	rec := w.Snapshot()
	err := w.drafts.SaveDraft(ctx, rec)

	w.mu.Lock()
	defer w.mu.Unlock()
	if err != nil {
		w.draftErr = err.Error()
		return errors.Wrap(err, "save draft")
	}
	at := w.now().UTC()
	w.lastDraftAt = &at
	w.draftErr = ""
	return nil
}

// Stroke draws one pointer stroke on role's pad and, as on pointer release,
// commits the raster to the matching signature field.
func (w *Wizard) Stroke(role Role, points []signature.Point) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	pad, err := w.padLocked(role)
	if err != nil || len(points) == 0 {
		return err
	}
	pad.Begin(points[0])
	for _, pt := range points[1:] {
		pad.Move(pt)
	}
	return w.commitLocked(role, pad)
}

// ClearSignature resets role's pad and empties its signature field.
func (w *Wizard) ClearSignature(role Role) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	pad, err := w.padLocked(role)
	if err != nil {
		return err
	}
	pad.Clear()
	w.setSignatureLocked(role, "")
	return nil
}

// SetSignatureImage replaces role's signature with an uploaded PNG data URL.
func (w *Wizard) SetSignatureImage(role Role, dataURL string) error {
	img, err := signature.Decode(dataURL)
	if err != nil {
		return err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	pad, err := w.padLocked(role)
	if err != nil {
		return err
	}
	pad.Load(img)
	return w.commitLocked(role, pad)
}

// commitLocked stores role's raster, or clears the field when no ink landed
// on the pad.
func (w *Wizard) commitLocked(role Role, pad *signature.Pad) error {
	url, err := pad.End()
	if err != nil {
		return err
	}
	if pad.Empty() {
		url = ""
	}
	w.setSignatureLocked(role, url)
	return nil
}

func (w *Wizard) padLocked(role Role) (*signature.Pad, error) {
	switch {
	case w.submitted:
		return nil, ErrAlreadySubmitted
	case w.submitting:
		return nil, ErrSubmitInProgress
	}
	pad, ok := w.pads[role]
	if !ok {
		return nil, errors.Wrapf(ErrUnknownRole, "%q", role)
	}
	return pad, nil
}

func (w *Wizard) setSignatureLocked(role Role, url string) {
	if role == RoleGuardian {
		w.record.GuardianSignature = url
		delete(w.errors, "guardianSignature")
		return
	}
	w.record.Signature = url
	delete(w.errors, "signature")
}

// Snapshot returns a copy of the current record.
func (w *Wizard) Snapshot() Record {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.record.Clone()
}

func (w *Wizard) Section() Section {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.section
}

// Submitted reports whether the record has been handed to the submitter.
func (w *Wizard) Submitted() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.submitted
}

// View is the render state of a wizard.
type View struct {
	Section       Section    `json:"currentSection"`
	Title         string     `json:"sectionTitle"`
	TotalSections int        `json:"totalSections"`
	Record        Record     `json:"formData"`
	Errors        Errors     `json:"errors"`
	IsSaving      bool       `json:"isSaving"`
	Submitted     bool       `json:"submitted"`
	SubmitError   string     `json:"submitError,omitempty"`
	DraftError    string     `json:"draftError,omitempty"`
	LastDraftAt   *time.Time `json:"lastDraftAt,omitempty"`
	Conditions    []string   `json:"conditionOptions"`
}

func (w *Wizard) View() View {
	w.mu.Lock()
	defer w.mu.Unlock()
	errs := make(Errors, len(w.errors))
	for k, v := range w.errors {
		errs[k] = v
	}
	return View{
		Section:       w.section,
		Title:         w.section.Title(),
		TotalSections: int(LastSection),
		Record:        w.record.Clone(),
		Errors:        errs,
		IsSaving:      w.now().Before(w.savingUntil),
		Submitted:     w.submitted,
		SubmitError:   w.submitErr,
		DraftError:    w.draftErr,
		LastDraftAt:   w.lastDraftAt,
		Conditions:    MedicalConditions,
	}
}
