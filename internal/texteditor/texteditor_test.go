package texteditor

import (
	"bytes"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShellEscape(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"", "''"},
		{"plain", "'plain'"},
		{"it's", `'it'\''s'`},
		{"$HOME `id` \"x\"", "'$HOME `id` \"x\"'"},
		{"''", `''\'''\'''`},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ShellEscape(tt.in), tt.in)
	}
}

func TestShellEscape_RoundTripsThroughShell(t *testing.T) {
	requireTool(t, "bash")
	for _, s := range []string{"it's", "a b\tc", "$(rm -rf /)", "back\\slash", "multi\nline", "'''"} {
		out, err := exec.Command("bash", "-c", "printf %s "+ShellEscape(s)).Output()
		require.NoError(t, err)
		assert.Equal(t, s, string(out))
	}
}

func TestCompile_View(t *testing.T) {
	cmd, err := Compile(Instruction{Command: CommandView, Path: "/tmp/a b.txt"})
	require.NoError(t, err)
	assert.Equal(t, "cat -n '/tmp/a b.txt'", cmd)

	cmd, err = Compile(Instruction{Command: CommandView, Path: "/etc/hosts", ViewRange: []int{3, 7}})
	require.NoError(t, err)
	assert.Equal(t, "cat -n '/etc/hosts' | sed -n '3,7p'", cmd)

	cmd, err = Compile(Instruction{Command: CommandView, Path: "/etc/hosts", ViewRange: []int{3, -1}})
	require.NoError(t, err)
	assert.Equal(t, "cat -n '/etc/hosts' | sed -n '3,$p'", cmd)
}

func TestCompile_Create(t *testing.T) {
	cmd, err := Compile(Instruction{Command: CommandCreate, Path: "/srv/app/main.go", FileText: "package main"})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(cmd, "mkdir -p '/srv/app' && cat > '/srv/app/main.go' << 'COMPEEK_EOF_"), cmd)
	lines := strings.Split(cmd, "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "package main", lines[1])
	assert.Contains(t, lines[0], "'"+lines[2]+"'")
}

func TestCompile_Validation(t *testing.T) {
	tests := []struct {
		name string
		in   Instruction
		want string
	}{
		{"missing path", Instruction{Command: CommandView}, "requires path"},
		{"bad range length", Instruction{Command: CommandView, Path: "/a", ViewRange: []int{1}}, "view_range"},
		{"range start zero", Instruction{Command: CommandView, Path: "/a", ViewRange: []int{0, 3}}, "start"},
		{"range reversed", Instruction{Command: CommandView, Path: "/a", ViewRange: []int{5, 3}}, "before start"},
		{"empty old_str", Instruction{Command: CommandStrReplace, Path: "/a"}, "requires old_str"},
		{"negative insert", Instruction{Command: CommandInsert, Path: "/a", InsertLine: -1}, "insert_line"},
		{"unknown", Instruction{Command: "undo_edit", Path: "/a"}, "unknown text editor command"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Compile(tt.in)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
	_, err := Compile(Instruction{Command: "undo_edit", Path: "/a"})
	assert.ErrorIs(t, err, ErrUnknownCommand)
}

func TestDescribe(t *testing.T) {
	assert.Equal(t, "Viewing /a", Describe(Instruction{Command: CommandView, Path: "/a"}))
	assert.Equal(t, "Viewing /a (lines 2-4)", Describe(Instruction{Command: CommandView, Path: "/a", ViewRange: []int{2, 4}}))
	assert.Equal(t, "Creating /a", Describe(Instruction{Command: CommandCreate, Path: "/a"}))
	assert.Equal(t, "Editing /a", Describe(Instruction{Command: CommandStrReplace, Path: "/a"}))
	assert.Equal(t, "Inserting at line 3 in /a", Describe(Instruction{Command: CommandInsert, Path: "/a", InsertLine: 3}))
	assert.Equal(t, "Text editor: undo_edit", Describe(Instruction{Command: "undo_edit", Path: "/a"}))
}

// The remaining tests run the compiled commands through a real shell.

func requireTool(t *testing.T, names ...string) {
	t.Helper()
	for _, n := range names {
		if _, err := exec.LookPath(n); err != nil {
			t.Skipf("%s not available", n)
		}
	}
}

func run(t *testing.T, in Instruction) (stdout, stderr string, err error) {
	t.Helper()
	cmd, cerr := Compile(in)
	require.NoError(t, cerr)
	c := exec.Command("bash", "-c", cmd)
	var out, errOut bytes.Buffer
	c.Stdout = &out
	c.Stderr = &errOut
	err = c.Run()
	return out.String(), errOut.String(), err
}

func TestCreateThenView(t *testing.T) {
	requireTool(t, "bash")
	p := filepath.Join(t.TempDir(), "nested", "x.txt")

	_, _, err := run(t, Instruction{Command: CommandCreate, Path: p, FileText: "hi"})
	require.NoError(t, err)

	out, _, err := run(t, Instruction{Command: CommandView, Path: p})
	require.NoError(t, err)
	assert.Contains(t, out, "1\thi")
	assert.Equal(t, 1, strings.Count(out, "\n"))
}

func TestCreate_LiteralContent(t *testing.T) {
	requireTool(t, "bash")
	p := filepath.Join(t.TempDir(), "s.sh")
	content := "echo $HOME `whoami` 'quoted'\nCOMPEEK_EOF\n\\n"

	_, _, err := run(t, Instruction{Command: CommandCreate, Path: p, FileText: content})
	require.NoError(t, err)
	got, err := os.ReadFile(p)
	require.NoError(t, err)
	assert.Equal(t, content+"\n", string(got))
}

func TestView_RangeKeepsLineNumbers(t *testing.T) {
	requireTool(t, "bash")
	p := filepath.Join(t.TempDir(), "lines.txt")
	require.NoError(t, os.WriteFile(p, []byte("a\nb\nc\nd\n"), 0o644))

	out, _, err := run(t, Instruction{Command: CommandView, Path: p, ViewRange: []int{2, 3}})
	require.NoError(t, err)
	assert.Equal(t, "     2\tb\n     3\tc\n", out)
}

func TestStrReplace(t *testing.T) {
	requireTool(t, "bash", "python3")

	tests := []struct {
		name     string
		content  string
		wantErr  string
		wantFile string
	}{
		{"exactly one", "alpha 'beta' gamma\n", "", "alpha \"delta\" gamma\n"},
		{"none", "alpha gamma\n", "Error: string not found in", "alpha gamma\n"},
		{"two", "'beta' and 'beta'\n", "Error: found 2 occurrences, expected exactly 1", "'beta' and 'beta'\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := filepath.Join(t.TempDir(), "f.txt")
			require.NoError(t, os.WriteFile(p, []byte(tt.content), 0o644))

			out, errOut, err := run(t, Instruction{Command: CommandStrReplace, Path: p, OldStr: "'beta'", NewStr: `"delta"`})
			got, rerr := os.ReadFile(p)
			require.NoError(t, rerr)
			assert.Equal(t, tt.wantFile, string(got))

			if tt.wantErr == "" {
				require.NoError(t, err, errOut)
				assert.Equal(t, "Replaced 1 occurrence in "+p+"\n", out)
				return
			}
			require.Error(t, err)
			assert.Contains(t, errOut, tt.wantErr)
		})
	}
}

func TestStrReplace_Multiline(t *testing.T) {
	requireTool(t, "bash", "python3")
	p := filepath.Join(t.TempDir(), "m.py")
	require.NoError(t, os.WriteFile(p, []byte("def f():\n    return 1\n"), 0o644))

	_, errOut, err := run(t, Instruction{
		Command: CommandStrReplace, Path: p,
		OldStr: "def f():\n    return 1", NewStr: "def f():\n    return \"\\n\"",
	})
	require.NoError(t, err, errOut)
	got, _ := os.ReadFile(p)
	assert.Equal(t, "def f():\n    return \"\\n\"\n", string(got))
}

func TestInsert(t *testing.T) {
	requireTool(t, "bash", "python3")

	tests := []struct {
		name string
		line int
		text string
		want string
		msg  string
	}{
		{"at start", 0, "zero", "zero\none\ntwo\n", "Inserted 1 line(s) at line 0"},
		{"after first", 1, "x\ny", "one\nx\ny\ntwo\n", "Inserted 2 line(s) at line 1"},
		{"at end", 2, "three", "one\ntwo\nthree\n", "Inserted 1 line(s) at line 2"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := filepath.Join(t.TempDir(), "f.txt")
			require.NoError(t, os.WriteFile(p, []byte("one\ntwo\n"), 0o644))

			out, errOut, err := run(t, Instruction{Command: CommandInsert, Path: p, InsertLine: tt.line, NewStr: tt.text})
			require.NoError(t, err, errOut)
			assert.Contains(t, out, tt.msg)
			got, _ := os.ReadFile(p)
			assert.Equal(t, tt.want, string(got))
		})
	}
}
