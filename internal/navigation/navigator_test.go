package navigation

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeCascader models a cascading picker over a fixed tree.
type fakeCascader struct {
	tree       map[string][]string // parent path -> children
	visible    bool
	hasConfirm bool
	delay      int // Options calls returning nothing before the menu renders

	open      bool
	selected  []string
	committed []string
	clicks    []string
	dismissed bool
	optionErr error
}

func (f *fakeCascader) Open(context.Context) (bool, error) {
	if !f.visible {
		return false, nil
	}
	f.open = true
	f.selected = nil
	return true, nil
}

func (f *fakeCascader) levels() [][]string {
	var out [][]string
	parent := ""
	out = append(out, f.tree[parent])
	for _, s := range f.selected {
		parent = strings.TrimPrefix(parent+"/"+s, "/")
		if kids, ok := f.tree[parent]; ok {
			out = append(out, kids)
		}
	}
	return out
}

func (f *fakeCascader) Options(context.Context) ([]Option, error) {
	if f.optionErr != nil {
		return nil, f.optionErr
	}
	if !f.open {
		return nil, nil
	}
	if f.delay > 0 {
		f.delay--
		return nil, nil
	}
	var opts []Option
	for lvl, items := range f.levels() {
		for i, t := range items {
			opts = append(opts, Option{Text: t, Level: lvl, Index: i})
		}
	}
	return opts, nil
}

func (f *fakeCascader) MenuCount(context.Context) (int, error) {
	if !f.open {
		return 0, nil
	}
	return len(f.levels()), nil
}

func (f *fakeCascader) Click(_ context.Context, o Option) error {
	f.clicks = append(f.clicks, o.Text)
	f.selected = append(f.selected[:o.Level], strings.TrimSpace(o.Text))
	return nil
}

func (f *fakeCascader) Confirm(context.Context) (bool, error) {
	if !f.hasConfirm {
		return false, nil
	}
	f.commit()
	return true, nil
}

func (f *fakeCascader) Dismiss(context.Context) error {
	f.dismissed = true
	f.commit()
	return nil
}

func (f *fakeCascader) commit() {
	f.open = false
	f.committed = append([]string(nil), f.selected...)
}

func (f *fakeCascader) Label(context.Context) (string, error) {
	if !f.visible {
		return "", nil
	}
	return strings.Join(f.committed, " / "), nil
}

func quick() Options {
	return Options{MenuAttempts: 5}
}

func newTree() map[string][]string {
	return map[string][]string{
		"":                    {"智能家居", "Home"},
		"智能家居":                {"收纳整理", "灯具"},
		"智能家居/收纳整理":           {"家庭收纳用具"},
		"智能家居/收纳整理/家庭收纳用具":    {"全部", "收纳盒"},
		"Home":                {"Storage Box"},
	}
}

func TestNavigateTo_ThreeLevelsWithExtraLevel(t *testing.T) {
	p := &fakeCascader{tree: newTree(), visible: true, hasConfirm: true}
	n := New(p, quick(), nil)

	ok, err := n.NavigateTo(context.Background(), ParsePath("智能家居/收纳整理/家庭收纳用具/全部"))
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []string{"智能家居", "收纳整理", "家庭收纳用具", "全部"}, p.clicks)
	assert.False(t, p.dismissed)

	cur, err := n.CurrentCategory(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "智能家居/收纳整理/家庭收纳用具", cur)
}

func TestNavigateTo_WhitespaceInsensitiveAndDismiss(t *testing.T) {
	p := &fakeCascader{tree: newTree(), visible: true}
	n := New(p, quick(), nil)

	ok, err := n.NavigateTo(context.Background(), []string{"Home", "StorageBox"})
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, p.dismissed)
}

func TestNavigateTo_RetriesUntilMenuRenders(t *testing.T) {
	p := &fakeCascader{tree: newTree(), visible: true, hasConfirm: true, delay: 3}
	n := New(p, quick(), nil)

	ok, err := n.NavigateTo(context.Background(), []string{"Home"})
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestNavigateTo_Failures(t *testing.T) {
	t.Run("no picker", func(t *testing.T) {
		p := &fakeCascader{tree: newTree()}
		ok, err := New(p, quick(), nil).NavigateTo(context.Background(), []string{"Home"})
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("unknown segment fails verification", func(t *testing.T) {
		p := &fakeCascader{tree: newTree(), visible: true, hasConfirm: true}
		ok, err := New(p, quick(), nil).NavigateTo(context.Background(), []string{"Home", "Lamps"})
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("menu never renders", func(t *testing.T) {
		p := &fakeCascader{tree: newTree(), visible: true, delay: 100}
		ok, err := New(p, quick(), nil).NavigateTo(context.Background(), []string{"Home"})
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("empty path", func(t *testing.T) {
		p := &fakeCascader{tree: newTree(), visible: true}
		ok, err := New(p, quick(), nil).NavigateTo(context.Background(), []string{"全部"})
		require.NoError(t, err)
		assert.False(t, ok)
		assert.False(t, p.open)
	})

	t.Run("driver error", func(t *testing.T) {
		p := &fakeCascader{tree: newTree(), visible: true, optionErr: errors.New("target closed")}
		ok, err := New(p, quick(), nil).NavigateTo(context.Background(), []string{"Home"})
		assert.False(t, ok)
		var navErr *Error
		require.ErrorAs(t, err, &navErr)
		assert.Equal(t, []string{"Home"}, navErr.Path)
	})
}

func TestParsePath(t *testing.T) {
	assert.Equal(t, []string{"A", "B", "C"}, ParsePath("A/B/C/全部"))
	assert.Equal(t, []string{"A", "B"}, ParsePath(" A / B /"))
	assert.Empty(t, ParsePath("全部"))
}

func TestNormalizeLabel(t *testing.T) {
	assert.Equal(t, "A/B/C", NormalizeLabel("A / B / C / 全部"))
	assert.Equal(t, "A/B", NormalizeLabel("  A/ B "))
	assert.True(t, SameCategory("A / B", "A/B"))
	assert.False(t, SameCategory("A/B", "A/C"))
}
