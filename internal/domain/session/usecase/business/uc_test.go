package business

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dapen17/vps1/config"
	"github.com/dapen17/vps1/internal/domain"
	"github.com/dapen17/vps1/internal/domain/session/entities"
	sessionerrors "github.com/dapen17/vps1/internal/domain/session/errors"
	"github.com/dapen17/vps1/internal/infrastructure/telegram"
	pkgerrors "github.com/dapen17/vps1/pkg/errors"
)

const (
	adminID = int64(1)
	userID  = int64(2)
)

type fakeAccounts struct {
	refs       []domain.SessionRef
	logoutErr  error
	exported   []domain.SessionFile
	restarted  []int64
	maxSession int
}

func (f *fakeAccounts) SessionsOf(_ context.Context, ownerID int64) ([]domain.Account, error) {
	var out []domain.Account
	for _, r := range f.refs {
		if r.OwnerID == ownerID {
			out = append(out, domain.Account{OwnerID: r.OwnerID, Phone: r.Phone})
		}
	}
	return out, nil
}

func (f *fakeAccounts) SessionCount(context.Context) (int, error) { return len(f.refs), nil }

func (f *fakeAccounts) MaxSessions() int { return f.maxSession }

func (f *fakeAccounts) Logout(_ context.Context, ref domain.SessionRef) error {
	if f.logoutErr != nil {
		return f.logoutErr
	}
	for i, r := range f.refs {
		if r == ref {
			f.refs = append(f.refs[:i], f.refs[i+1:]...)
			return nil
		}
	}
	return domain.ErrAccountNotFound
}

func (f *fakeAccounts) Reset(_ context.Context, match func(domain.SessionRef) bool) (int, error) {
	kept := f.refs[:0]
	removed := 0
	for _, r := range f.refs {
		if match(r) {
			removed++
			continue
		}
		kept = append(kept, r)
	}
	f.refs = kept
	return removed, nil
}

func (f *fakeAccounts) Restart(_ context.Context, ownerID int64) (int, error) {
	f.restarted = append(f.restarted, ownerID)
	return 1, nil
}

func (f *fakeAccounts) ReconnectAll(context.Context) (int, error) { return 2, nil }

func (f *fakeAccounts) ExportSessions(context.Context) ([]domain.SessionFile, error) {
	return f.exported, nil
}

type fakeLogins struct {
	startErr   error
	verifyErr  error
	passErr    error
	account    domain.Account
	lastPhone  string
	lastCode   string
	qrAccount  domain.Account
	qrErr      error
	startQRErr error
}

func (f *fakeLogins) StartLogin(_ context.Context, _ int64, phone string) error {
	f.lastPhone = phone
	return f.startErr
}

func (f *fakeLogins) VerifyCode(_ context.Context, _ int64, code string) (domain.Account, error) {
	f.lastCode = code
	return f.account, f.verifyErr
}

func (f *fakeLogins) SubmitPassword(context.Context, int64, string) (domain.Account, error) {
	return f.account, f.passErr
}

func (f *fakeLogins) StartQRLogin(ctx context.Context, _ int64, h telegram.QRHandler) error {
	if f.startQRErr != nil {
		return f.startQRErr
	}
	if err := h.OnQRCode(ctx, []byte("png"), time.Now().Add(30*time.Second)); err != nil {
		return err
	}
	h.OnQRLogin(ctx, f.qrAccount, f.qrErr)
	return nil
}

type recordingQR struct {
	codes   int
	account domain.Account
	err     error
}

func (r *recordingQR) OnQRCode(context.Context, []byte, time.Time) error {
	r.codes++
	return nil
}

func (r *recordingQR) OnQRLogin(_ context.Context, account domain.Account, err error) {
	r.account, r.err = account, err
}

type countingPersister struct{ calls int }

func (c *countingPersister) Persist(context.Context) { c.calls++ }

type fakeUploader struct {
	name string
	err  error
}

func (f *fakeUploader) UploadSessionArchive(_ context.Context, name string, _ []byte) (string, error) {
	f.name = name
	if f.err != nil {
		return "", f.err
	}
	return "https://minio.local/" + name, nil
}

type recordingEvents struct{ events []entities.AccountEvent }

func (r *recordingEvents) Publish(_ context.Context, ev entities.AccountEvent) error {
	r.events = append(r.events, ev)
	return nil
}

func (r *recordingEvents) types() []string {
	out := make([]string, 0, len(r.events))
	for _, ev := range r.events {
		out = append(out, ev.Type)
	}
	return out
}

type fixture struct {
	uc        *UseCase
	accounts  *fakeAccounts
	logins    *fakeLogins
	persister *countingPersister
	events    *recordingEvents
}

func newFixture(uploader *fakeUploader) *fixture {
	f := &fixture{
		accounts:  &fakeAccounts{maxSession: 10},
		logins:    &fakeLogins{},
		persister: &countingPersister{},
		events:    &recordingEvents{},
	}
	admins := &config.ControlBotConfig{AdminIDs: []int64{adminID}}
	if uploader == nil {
		f.uc = NewUseCase(f.accounts, f.logins, f.persister, nil, f.events, admins, zerolog.Nop())
	} else {
		f.uc = NewUseCase(f.accounts, f.logins, f.persister, uploader, f.events, admins, zerolog.Nop())
	}
	return f
}

func TestNormalizePhone(t *testing.T) {
	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{"+628123456789", "628123456789", true},
		{" +62 812-345-6789 ", "628123456789", true},
		{"+1 (555) 123-4567", "15551234567", true},
		{"12345", "", false},
		{"+62abc123456", "", false},
		{"", "", false},
		{"1234567890123456", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := NormalizePhone(tt.in)
			if !tt.ok {
				require.ErrorIs(t, err, sessionerrors.ErrInvalidPhone)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDigitsOnlyAndMask(t *testing.T) {
	assert.Equal(t, "12345", DigitsOnly("1 2-3 4 5"))
	assert.Equal(t, "", DigitsOnly("abc"))
	assert.Equal(t, "62********89", MaskPhone("628123456789"))
	assert.Equal(t, "***", MaskPhone("12"))
}

func TestUseCase_LoginNormalizesPhone(t *testing.T) {
	f := newFixture(nil)

	phone, err := f.uc.Login(context.Background(), userID, "+62 812 3456 789")
	require.NoError(t, err)
	assert.Equal(t, "628123456789", phone)
	assert.Equal(t, "628123456789", f.logins.lastPhone)
	assert.Equal(t, []string{entities.EventLoginStarted}, f.events.types())
	assert.Equal(t, "62********89", f.events.events[0].Phone)
}

func TestUseCase_LoginMapsErrors(t *testing.T) {
	f := newFixture(nil)

	f.logins.startErr = domain.ErrSessionLimit
	_, err := f.uc.Login(context.Background(), userID, "+628123456789")
	require.ErrorIs(t, err, sessionerrors.ErrSessionLimit)
	assert.True(t, pkgerrors.IsConflict(err))

	f.logins.startErr = errors.Join(telegram.ErrInvalidPhone)
	_, err = f.uc.Login(context.Background(), userID, "+628123456789")
	require.ErrorIs(t, err, sessionerrors.ErrInvalidPhone)

	f.logins.startErr = &domain.RateLimitedError{RetryAfter: time.Minute}
	_, err = f.uc.Login(context.Background(), userID, "+628123456789")
	d, ok := domain.AsRateLimited(err)
	require.True(t, ok)
	assert.Equal(t, time.Minute, d)

	assert.Empty(t, f.events.events)
}

func TestUseCase_VerifyStripsCode(t *testing.T) {
	f := newFixture(nil)
	f.logins.account = domain.Account{ID: 99, OwnerID: userID, Phone: "628123456789"}

	res, err := f.uc.Verify(context.Background(), userID, "1 2 3 4 5")
	require.NoError(t, err)
	assert.False(t, res.PasswordRequired)
	assert.Equal(t, int64(99), res.Account.ID)
	assert.Equal(t, "12345", f.logins.lastCode)
	require.Len(t, f.events.events, 1)
	assert.Equal(t, entities.EventAccountAttached, f.events.events[0].Type)
	assert.Equal(t, int64(99), f.events.events[0].AccountID)
}

func TestUseCase_VerifyPasswordRequired(t *testing.T) {
	f := newFixture(nil)
	f.logins.verifyErr = domain.ErrPasswordRequired

	res, err := f.uc.Verify(context.Background(), userID, "12345")
	require.NoError(t, err)
	assert.True(t, res.PasswordRequired)
	assert.Empty(t, f.events.events)
}

func TestUseCase_VerifyErrors(t *testing.T) {
	f := newFixture(nil)

	_, err := f.uc.Verify(context.Background(), userID, "abc")
	require.ErrorIs(t, err, sessionerrors.ErrInvalidCodeInput)

	f.logins.verifyErr = domain.ErrInvalidCode
	_, err = f.uc.Verify(context.Background(), userID, "12345")
	require.ErrorIs(t, err, sessionerrors.ErrWrongCode)

	f.logins.verifyErr = domain.ErrNoPendingLogin
	_, err = f.uc.Verify(context.Background(), userID, "12345")
	require.ErrorIs(t, err, sessionerrors.ErrNoPendingLogin)
}

func TestUseCase_Password(t *testing.T) {
	f := newFixture(nil)

	_, err := f.uc.Password(context.Background(), userID, "   ")
	require.ErrorIs(t, err, sessionerrors.ErrEmptyPassword)

	f.logins.passErr = domain.ErrInvalidPassword
	_, err = f.uc.Password(context.Background(), userID, "secret")
	require.ErrorIs(t, err, sessionerrors.ErrWrongPassword)

	f.logins.passErr = nil
	f.logins.account = domain.Account{ID: 7, OwnerID: userID}
	res, err := f.uc.Password(context.Background(), userID, "secret")
	require.NoError(t, err)
	assert.Equal(t, int64(7), res.Account.ID)
}

func TestUseCase_QRLoginReportsAttach(t *testing.T) {
	f := newFixture(nil)
	f.logins.qrAccount = domain.Account{ID: 55, OwnerID: userID}
	h := &recordingQR{}

	require.NoError(t, f.uc.QRLogin(context.Background(), userID, h))
	assert.Equal(t, 1, h.codes)
	assert.NoError(t, h.err)
	assert.Equal(t, int64(55), h.account.ID)
	assert.Equal(t, []string{entities.EventAccountAttached}, f.events.types())
}

func TestUseCase_QRLoginMapsOutcome(t *testing.T) {
	f := newFixture(nil)
	f.logins.qrErr = domain.ErrPasswordRequired
	h := &recordingQR{}

	require.NoError(t, f.uc.QRLogin(context.Background(), userID, h))
	assert.ErrorIs(t, h.err, domain.ErrPasswordRequired)
	assert.Empty(t, f.events.events)

	f.logins.startQRErr = domain.ErrSessionLimit
	require.ErrorIs(t, f.uc.QRLogin(context.Background(), userID, h), sessionerrors.ErrSessionLimit)
}

func TestUseCase_Logout(t *testing.T) {
	f := newFixture(nil)
	f.accounts.refs = []domain.SessionRef{{OwnerID: userID, Phone: "628123456789"}}

	_, err := f.uc.Logout(context.Background(), userID, "+628000000000")
	require.ErrorIs(t, err, sessionerrors.ErrAccountNotFound)

	phone, err := f.uc.Logout(context.Background(), userID, "+62 812 3456 789")
	require.NoError(t, err)
	assert.Equal(t, "628123456789", phone)
	assert.Empty(t, f.accounts.refs)
	assert.Equal(t, []string{entities.EventAccountLogout}, f.events.types())
}

func TestUseCase_List(t *testing.T) {
	f := newFixture(nil)
	f.accounts.refs = []domain.SessionRef{
		{OwnerID: userID, Phone: "111111111"},
		{OwnerID: adminID, Phone: "222222222"},
	}

	list, err := f.uc.List(context.Background(), userID)
	require.NoError(t, err)
	require.Len(t, list.Accounts, 1)
	assert.Equal(t, "111111111", list.Accounts[0].Phone)
	assert.Equal(t, 2, list.Total)
	assert.Equal(t, 10, list.Max)
}

func TestUseCase_ResetAllScope(t *testing.T) {
	refs := []domain.SessionRef{
		{OwnerID: userID, Phone: "111111111"},
		{OwnerID: adminID, Phone: "222222222"},
		{OwnerID: 3, Phone: "333333333"},
	}

	t.Run("user resets own sessions", func(t *testing.T) {
		f := newFixture(nil)
		f.accounts.refs = append([]domain.SessionRef(nil), refs...)

		removed, err := f.uc.ResetAll(context.Background(), userID)
		require.NoError(t, err)
		assert.Equal(t, 1, removed)
		assert.Len(t, f.accounts.refs, 2)
	})

	t.Run("admin resets everything", func(t *testing.T) {
		f := newFixture(nil)
		f.accounts.refs = append([]domain.SessionRef(nil), refs...)

		removed, err := f.uc.ResetAll(context.Background(), adminID)
		require.NoError(t, err)
		assert.Equal(t, 3, removed)
		assert.Empty(t, f.accounts.refs)
		assert.Equal(t, 3, f.events.events[0].Count)
	})
}

func TestUseCase_RestartPersistsFirst(t *testing.T) {
	f := newFixture(nil)

	n, err := f.uc.Restart(context.Background(), userID)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 1, f.persister.calls)
	assert.Equal(t, []int64{userID}, f.accounts.restarted)
}

func TestUseCase_Reconnect(t *testing.T) {
	f := newFixture(nil)

	n, err := f.uc.Reconnect(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestUseCase_ExportSessionsAdminOnly(t *testing.T) {
	f := newFixture(nil)

	_, err := f.uc.ExportSessions(context.Background(), userID)
	require.ErrorIs(t, err, sessionerrors.ErrAdminOnly)
	assert.True(t, pkgerrors.IsPermission(err))

	_, err = f.uc.ExportSessions(context.Background(), adminID)
	require.ErrorIs(t, err, sessionerrors.ErrNoSessions)
}

func TestUseCase_ExportSessionsArchive(t *testing.T) {
	uploader := &fakeUploader{}
	f := newFixture(uploader)
	f.accounts.exported = []domain.SessionFile{
		{Name: "2_111111111.session", Data: []byte("one")},
		{Name: "3_222222222.session", Data: []byte("two")},
	}

	archive, err := f.uc.ExportSessions(context.Background(), adminID)
	require.NoError(t, err)
	assert.Equal(t, 2, archive.Files)
	assert.Equal(t, uploader.name, archive.Name)
	assert.Equal(t, "https://minio.local/"+archive.Name, archive.Link)

	zr, err := zip.NewReader(bytes.NewReader(archive.Data), int64(len(archive.Data)))
	require.NoError(t, err)
	require.Len(t, zr.File, 2)

	got := map[string]string{}
	for _, zf := range zr.File {
		rc, err := zf.Open()
		require.NoError(t, err)
		data, err := io.ReadAll(rc)
		require.NoError(t, err)
		require.NoError(t, rc.Close())
		got[zf.Name] = string(data)
	}
	assert.Equal(t, map[string]string{"2_111111111.session": "one", "3_222222222.session": "two"}, got)
	assert.Equal(t, []string{entities.EventSessionsExport}, f.events.types())
}

func TestUseCase_ExportSessionsUploadFailureKeepsArchive(t *testing.T) {
	f := newFixture(&fakeUploader{err: errors.New("minio down")})
	f.accounts.exported = []domain.SessionFile{{Name: "a.session", Data: []byte("x")}}

	archive, err := f.uc.ExportSessions(context.Background(), adminID)
	require.NoError(t, err)
	assert.Empty(t, archive.Link)
	assert.NotEmpty(t, archive.Data)
}
