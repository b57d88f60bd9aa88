// Package texteditor compiles file-editing instructions into shell commands.
// Nothing here touches the filesystem; the commands run wherever the bash
// tool runs, which may be a remote container.
package texteditor

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// Command names accepted by the editor tool.
const (
	CommandView       = "view"
	CommandCreate     = "create"
	CommandStrReplace = "str_replace"
	CommandInsert     = "insert"
)

// ErrUnknownCommand is wrapped by Compile for unsupported commands.
var ErrUnknownCommand = errors.New("unknown text editor command")

// Instruction is one text_editor tool call.
type Instruction struct {
	Command    string `json:"command"`
	Path       string `json:"path"`
	FileText   string `json:"file_text,omitempty"`
	OldStr     string `json:"old_str,omitempty"`
	NewStr     string `json:"new_str,omitempty"`
	InsertLine int    `json:"insert_line,omitempty"`
	ViewRange  []int  `json:"view_range,omitempty"`
}

// Validate checks the fields required by the command.
func (in Instruction) Validate() error {
	if in.Path == "" {
		return fmt.Errorf("%s requires path", in.Command)
	}
	switch in.Command {
	case CommandView:
		if in.ViewRange == nil {
			return nil
		}
		if len(in.ViewRange) != 2 {
			return fmt.Errorf("view_range must be [start, end], got %d elements", len(in.ViewRange))
		}
		start, end := in.ViewRange[0], in.ViewRange[1]
		if start < 1 {
			return fmt.Errorf("view_range start must be >= 1, got %d", start)
		}
		if end != -1 && end < start {
			return fmt.Errorf("view_range end %d is before start %d", end, start)
		}
		return nil
	case CommandCreate:
		return nil
	case CommandStrReplace:
		if in.OldStr == "" {
			return errors.New("str_replace requires old_str")
		}
		return nil
	case CommandInsert:
		if in.InsertLine < 0 {
			return fmt.Errorf("insert_line must be >= 0, got %d", in.InsertLine)
		}
		return nil
	}
	return fmt.Errorf("%w: %s", ErrUnknownCommand, in.Command)
}

// ShellEscape wraps s in single quotes so a POSIX shell passes it through
// as one literal word.
func ShellEscape(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

// Compile turns an instruction into a single bash command line.
func Compile(in Instruction) (string, error) {
	if err := in.Validate(); err != nil {
		return "", err
	}
	switch in.Command {
	case CommandView:
		return compileView(in), nil
	case CommandCreate:
		return compileCreate(in), nil
	case CommandStrReplace:
		return python(strReplaceScript, pyString(in.Path), pyString(in.OldStr), pyString(in.NewStr)), nil
	case CommandInsert:
		return python(insertScript, pyString(in.Path), strconv.Itoa(in.InsertLine), pyString(in.NewStr)), nil
	}
	return "", fmt.Errorf("%w: %s", ErrUnknownCommand, in.Command)
}

// Describe returns a short human-readable summary of the instruction.
func Describe(in Instruction) string {
	switch in.Command {
	case CommandView:
		if len(in.ViewRange) == 2 {
			return fmt.Sprintf("Viewing %s (lines %d-%d)", in.Path, in.ViewRange[0], in.ViewRange[1])
		}
		return "Viewing " + in.Path
	case CommandCreate:
		return "Creating " + in.Path
	case CommandStrReplace:
		return "Editing " + in.Path
	case CommandInsert:
		return fmt.Sprintf("Inserting at line %d in %s", in.InsertLine, in.Path)
	}
	return "Text editor: " + in.Command
}

// compileView numbers the whole file first so a range keeps real line numbers.
func compileView(in Instruction) string {
	cmd := "cat -n " + ShellEscape(in.Path)
	if len(in.ViewRange) != 2 {
		return cmd
	}
	end := strconv.Itoa(in.ViewRange[1])
	if in.ViewRange[1] == -1 {
		end = "$"
	}
	return fmt.Sprintf("%s | sed -n '%d,%sp'", cmd, in.ViewRange[0], end)
}

func compileCreate(in Instruction) string {
	delim := heredocDelimiter(in.FileText)
	return fmt.Sprintf("mkdir -p %s && cat > %s << '%s'\n%s\n%s",
		ShellEscape(path.Dir(in.Path)), ShellEscape(in.Path), delim, in.FileText, delim)
}

// heredocDelimiter picks a terminator that cannot appear as a line of content.
func heredocDelimiter(content string) string {
	for {
		d := "COMPEEK_EOF_" + strings.ReplaceAll(uuid.NewString(), "-", "")
		if !strings.Contains(content, d) {
			return d
		}
	}
}

// pyString renders s as a Python string literal. JSON string syntax is a
// subset of Python's.
func pyString(s string) string {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(s)
	return strings.TrimSuffix(buf.String(), "\n")
}

func python(script string, args ...any) string {
	return "python3 -c " + ShellEscape(fmt.Sprintf(script, args...))
}

const strReplaceScript = `import sys
path = %s
old = %s
new = %s
with open(path, 'r') as f:
    content = f.read()
count = content.count(old)
if count == 0:
    print(f"Error: string not found in {path}", file=sys.stderr)
    sys.exit(1)
if count > 1:
    print(f"Error: found {count} occurrences, expected exactly 1", file=sys.stderr)
    sys.exit(1)
content = content.replace(old, new, 1)
with open(path, 'w') as f:
    f.write(content)
print(f"Replaced 1 occurrence in {path}")`

const insertScript = `import sys
path = %s
line_num = %s
new_text = %s
with open(path, 'r') as f:
    lines = f.readlines()
new_lines = new_text.split('\n')
for i, line in enumerate(new_lines):
    lines.insert(line_num + i, line + '\n')
with open(path, 'w') as f:
    f.writelines(lines)
print(f"Inserted {len(new_lines)} line(s) at line {line_num} in {path}")`
