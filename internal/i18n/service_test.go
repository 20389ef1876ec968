package i18n

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crazy-cooker/crazy_cooker/internal/apperror"
	"github.com/crazy-cooker/crazy_cooker/internal/logging"
)

type countingStore struct {
	*MemoryStore
	loads int
}

func (c *countingStore) Load(ctx context.Context) (string, bool, error) {
	c.loads++
	return c.MemoryStore.Load(ctx)
}

// slowStore holds Save open until release is closed.
type slowStore struct {
	*MemoryStore
	entered chan string
	release chan struct{}
}

func (s *slowStore) Save(ctx context.Context, code string) error {
	s.entered <- code
	<-s.release
	return s.MemoryStore.Save(ctx, code)
}

func newService(t *testing.T, store LocaleStore, device string) *Service {
	t.Helper()
	cat, err := LoadEmbedded()
	require.NoError(t, err)
	tr, err := NewTranslator(cat)
	require.NoError(t, err)
	return NewService(context.Background(), tr, store, device, logging.Discard())
}

func TestStartupPrefersStoredCode(t *testing.T) {
	mem := NewMemoryStore()
	require.NoError(t, mem.Save(context.Background(), "ru"))
	store := &countingStore{MemoryStore: mem}

	svc := newService(t, store, "en_US.UTF-8")
	assert.Equal(t, "ru", svc.Current().Code)
	assert.Equal(t, 1, store.loads)
}

func TestStartupFallsBackToDeviceLocale(t *testing.T) {
	svc := newService(t, NewMemoryStore(), "ru_RU.UTF-8")
	assert.Equal(t, "ru", svc.Current().Code)
}

func TestStartupIgnoresUnknownStoredCode(t *testing.T) {
	mem := NewMemoryStore()
	require.NoError(t, mem.Save(context.Background(), "xx"))

	svc := newService(t, mem, "de_DE")
	assert.Equal(t, DefaultCode, svc.Current().Code)
}

func TestStartupSurvivesStoreFailure(t *testing.T) {
	mem := NewMemoryStore()
	mem.FailWith(errors.New("disk gone"))

	svc := newService(t, mem, "ru")
	assert.Equal(t, "ru", svc.Current().Code)
}

func TestChangeLanguage(t *testing.T) {
	mem := NewMemoryStore()
	svc := newService(t, mem, "")
	ctx := context.Background()

	require.NoError(t, svc.ChangeLanguage(ctx, "ru"))
	assert.Equal(t, "ru", svc.Current().Code)
	assert.Equal(t, "Войти", svc.T("auth.signIn", nil))

	code, found, err := mem.Load(ctx)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "ru", code)
}

func TestChangeLanguageRejectsUnsupported(t *testing.T) {
	mem := NewMemoryStore()
	svc := newService(t, mem, "")
	require.NoError(t, svc.ChangeLanguage(context.Background(), "ru"))

	err := svc.ChangeLanguage(context.Background(), "xx")
	require.Error(t, err)
	assert.True(t, apperror.IsValidation(err))
	assert.Equal(t, "ru", svc.Current().Code)
	assert.Equal(t, "missing.key", svc.T("missing.key", nil))
}

func TestChangeLanguagePersistenceIsBestEffort(t *testing.T) {
	mem := NewMemoryStore()
	svc := newService(t, mem, "")
	mem.FailWith(errors.New("read-only storage"))

	require.NoError(t, svc.ChangeLanguage(context.Background(), "ru"))
	assert.Equal(t, "ru", svc.Current().Code)
}

func TestMatchLocale(t *testing.T) {
	cases := map[string]string{
		"ru_RU.UTF-8": "ru",
		"en-GB":       "en",
		"ru":          "ru",
		"de_DE":       "",
		"":            "",
		"!!":          "",
	}
	for in, want := range cases {
		got, ok := MatchLocale(in)
		assert.Equal(t, want, got, "locale %q", in)
		assert.Equal(t, want != "", ok)
	}
}

func TestDeviceLocale(t *testing.T) {
	t.Setenv("LC_ALL", "")
	t.Setenv("LC_MESSAGES", "C")
	t.Setenv("LANG", "ru_RU.UTF-8")
	assert.Equal(t, "ru_RU.UTF-8", DeviceLocale())
}

func TestChangeLanguageDoesNotHoldStateDuringSave(t *testing.T) {
	store := &slowStore{MemoryStore: NewMemoryStore(), entered: make(chan string, 1), release: make(chan struct{})}
	svc := newService(t, store, "")

	done := make(chan error, 1)
	go func() { done <- svc.ChangeLanguage(context.Background(), "ru") }()
	select {
	case code := <-store.entered:
		assert.Equal(t, "ru", code)
	case <-time.After(time.Second):
		t.Fatal("save was not called")
	}

	current := make(chan string, 1)
	go func() { current <- svc.Current().Code }()
	select {
	case code := <-current:
		assert.Equal(t, "ru", code)
	case <-time.After(time.Second):
		t.Fatal("Current blocked on a pending save")
	}
	assert.Equal(t, "Войти", svc.T("auth.signIn", nil))

	close(store.release)
	require.NoError(t, <-done)
	code, found, err := store.MemoryStore.Load(context.Background())
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "ru", code)
}
