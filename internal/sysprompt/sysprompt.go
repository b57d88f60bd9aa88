// Package sysprompt holds the prompts sent to the model and the helpers that
// fill in their placeholders.
package sysprompt

import (
	"encoding/json"
	"strings"
)

// OS names accepted by ForOS.
const (
	OSLinux   = "linux"
	OSWindows = "windows"
	OSMacOS   = "macos"
)

// SystemPromptBase is the system prompt for every desktop run.
const SystemPromptBase = `You are compeek, an AI agent that can see and interact with a computer desktop. You have access to a virtual desktop environment and can take screenshots, click, type, scroll, and perform other actions.

Your capabilities:
- Take screenshots to see what's on screen
- Click, double-click, right-click at specific coordinates
- Type text and press keyboard shortcuts
- Scroll in any direction
- Zoom into specific screen regions for detailed inspection
- Navigate any application through its GUI

Guidelines:
- After each action, take a screenshot to verify the result before proceeding
- Use keyboard shortcuts when they're more reliable than mouse clicks (e.g., Tab to move between form fields)
- If an action doesn't produce the expected result, try an alternative approach
- Be precise with coordinates: click in the center of UI elements
- For form fields, click directly on the input area, not the label
- When typing into fields, first click to focus the field, then type
- For dropdowns, click to open, then click the desired option (or use keyboard arrows)
- Report your progress after completing each major step`

// linuxTools is appended on Linux desktops where the shell tools are declared.
const linuxTools = `

Additional tools:
- bash runs shell commands inside the desktop container (git, curl, python3, node and more). Prefer it for file and network work that does not need the GUI.
- str_replace_based_edit_tool views, creates and edits files. str_replace needs old_str to match exactly once.`

// guiOnly is appended on Windows and macOS desktops, which expose no shell.
const guiOnly = `

This desktop is reached over VNC. There is no shell or file access; complete the task through the GUI only.`

// FormFill is the user prompt for filling a form from extracted document data.
// Placeholder: {data}.
const FormFill = `You are filling out a form with data extracted from a document. Here is the data to enter:

<extracted_data>
{data}
</extracted_data>

Instructions:
1. The form is open in Firefox at http://localhost:8080
2. If Firefox is not open, open it and navigate to http://localhost:8080
3. Fill in each field carefully, matching the extracted data
4. For date fields, use the format shown in the form placeholder
5. For dropdown fields, click to open and select the correct option
6. After filling all fields, check the consent checkbox
7. Before submitting, take a screenshot and verify all fields are correct
8. Click Submit

After each field, take a screenshot to confirm the value was entered correctly. If something looks wrong, fix it before moving on.`

// GeneralWorkflow is the user prompt for a free-form task.
// Placeholders: {goal}, {context}.
const GeneralWorkflow = `Execute the following task on the desktop:

<task>
{goal}
</task>

{context}

Work step by step. After each action, take a screenshot to verify the result. If something doesn't work as expected, try an alternative approach. Report when the task is complete.`

// Validation asks the model to compare a filled form with expected data.
// Placeholder: {data}.
const Validation = `Look at this screenshot of a filled form. Compare the values in each field against the expected data below.

<expected_data>
{data}
</expected_data>

For each field, report:
- Field name
- Expected value
- Actual value visible in the form
- Whether they match (true/false)

Respond in JSON format:
{
  "results": [
    { "field": "First Name", "expected": "John", "actual": "John", "match": true },
    ...
  ],
  "allCorrect": true/false,
  "summary": "Brief summary of validation results"
}`

// DocumentExtraction asks the model to pull identity fields from a document image.
const DocumentExtraction = `Analyze this document image and extract all relevant personal/identifying information.

Extract the following fields if present:
- firstName, lastName, middleName
- dateOfBirth (in YYYY-MM-DD format)
- gender
- nationality
- documentType (passport, driver's license, ID card, etc.)
- documentNumber
- issueDate (in YYYY-MM-DD format)
- expiryDate (in YYYY-MM-DD format)
- issuingAuthority
- placeOfBirth
- address
- email, phone (if present)

Respond in JSON format:
{
  "documentType": "passport",
  "fields": {
    "firstName": "John",
    "lastName": "Doe",
    ...
  },
  "confidence": {
    "firstName": 0.99,
    "lastName": 0.95,
    ...
  }
}

If a field is not visible or readable, omit it. For partially readable fields, include them with lower confidence scores.`

// IsLinux reports whether os selects the full tool set. Empty means Linux.
func IsLinux(os string) bool {
	return os == "" || strings.EqualFold(os, OSLinux)
}

// ForOS returns the system prompt for the given desktop OS.
func ForOS(os string) string {
	if IsLinux(os) {
		return SystemPromptBase + linuxTools
	}
	return SystemPromptBase + guiOnly
}

// InterpolatePlaceholders replaces every {key} in template with its value in
// a single pass, so substituted text is never rescanned. Unknown placeholders
// are left as is.
func InterpolatePlaceholders(template string, values map[string]string) string {
	if len(values) == 0 {
		return template
	}
	pairs := make([]string, 0, len(values)*2)
	for k, v := range values {
		pairs = append(pairs, "{"+k+"}", v)
	}
	return strings.NewReplacer(pairs...).Replace(template)
}

// BuildUserPrompt selects and fills the opening user prompt. The form-fill
// prompt is used only when both context data and a document are supplied.
func BuildUserPrompt(goal string, context map[string]any, hasDocument bool) string {
	if len(context) > 0 && hasDocument {
		return InterpolatePlaceholders(FormFill, map[string]string{"data": indentJSON(context)})
	}
	contextStr := ""
	if len(context) > 0 {
		contextStr = "\nAdditional context:\n" + indentJSON(context)
	}
	return InterpolatePlaceholders(GeneralWorkflow, map[string]string{
		"goal":    goal,
		"context": contextStr,
	})
}

// TaskPrompt fills the general workflow prompt with a goal and no context.
func TaskPrompt(goal string) string {
	return BuildUserPrompt(goal, nil, false)
}

func indentJSON(v any) string {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return ""
	}
	return string(b)
}
