package errors

import (
	"encoding/json"
	stderrors "errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		code    string
		wantMsg string
		wantCat Category
	}{
		{
			name:    "config error",
			code:    "C101",
			wantMsg: "Invalid configuration syntax",
			wantCat: CategoryConfig,
		},
		{
			name:    "startup error",
			code:    "C201",
			wantMsg: "Cannot listen",
			wantCat: CategoryStartup,
		},
		{
			name:    "unknown error code",
			code:    "C999",
			wantMsg: "Unknown error",
			wantCat: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := New(tt.code)
			if err.Message != tt.wantMsg {
				t.Errorf("Message = %q, want %q", err.Message, tt.wantMsg)
			}
			if err.Category != tt.wantCat {
				t.Errorf("Category = %q, want %q", err.Category, tt.wantCat)
			}
			if err.Code != tt.code {
				t.Errorf("Code = %q, want %q", err.Code, tt.code)
			}
		})
	}
}

func TestNewf(t *testing.T) {
	err := Newf(CategoryStartup, "port %d busy", 1991)
	if err.Message != "port 1991 busy" {
		t.Errorf("Message = %q, want %q", err.Message, "port 1991 busy")
	}
	if err.Category != CategoryStartup {
		t.Errorf("Category = %q, want %q", err.Category, CategoryStartup)
	}
}

func TestError_Error(t *testing.T) {
	tests := []struct {
		name string
		err  *Error
		want string
	}{
		{"coded", New("C201"), "C201: Cannot listen"},
		{"uncoded", &Error{Message: "test error"}, "test error"},
		{"wrapped", New("C100").Wrap(os.ErrNotExist), "C100: Cannot read configuration file: file does not exist"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("Error() = %q, want %q", got, tt.want)
			}
		})
	}
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "c2w.json")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

const sampleConfig = `{
  "arq": {
    "timeout_ms": "fast",
    "max_retries": 100
  }
}
`

func TestError_WithLocation(t *testing.T) {
	path := writeConfig(t, sampleConfig)
	err := New("C102").WithLocation(path, 3, 19)

	if err.Location == nil {
		t.Fatal("Location is nil")
	}
	if err.Location.Line != 3 || err.Location.Column != 19 {
		t.Errorf("Location = %v, want line 3 column 19", err.Location)
	}
	want := []string{`  "arq": {`, `    "timeout_ms": "fast",`, `    "max_retries": 100`}
	if strings.Join(err.Context, "\n") != strings.Join(want, "\n") {
		t.Errorf("Context = %q, want %q", err.Context, want)
	}
}

func TestError_WithOffset(t *testing.T) {
	path := writeConfig(t, sampleConfig)
	var v struct {
		ARQ struct {
			TimeoutMS int `json:"timeout_ms"`
		} `json:"arq"`
	}
	jerr := json.Unmarshal([]byte(sampleConfig), &v)
	var te *json.UnmarshalTypeError
	if !stderrors.As(jerr, &te) {
		t.Fatalf("Unmarshal() error = %v, want type error", jerr)
	}

	err := New("C102").WithOffset(path, []byte(sampleConfig), te.Offset)
	if err.Location.Line != 3 {
		t.Errorf("Line = %d, want 3", err.Location.Line)
	}
}

func TestError_Builders(t *testing.T) {
	err := New("C104").WithSuggestion("Set server.stream").WithDetail("Custom detail")
	if err.Suggestion != "Set server.stream" {
		t.Errorf("Suggestion = %q", err.Suggestion)
	}
	if err.Detail != "Custom detail" {
		t.Errorf("Detail = %q", err.Detail)
	}
}

func TestError_Unwrap(t *testing.T) {
	err := New("C100").Wrap(os.ErrNotExist)
	if !stderrors.Is(err, os.ErrNotExist) {
		t.Error("errors.Is should see the wrapped error")
	}
}

func TestFromError(t *testing.T) {
	if FromError(nil, "C200") != nil {
		t.Error("FromError(nil, ...) should return nil")
	}

	ce := New("C201")
	if FromError(ce, "C200") != ce {
		t.Error("FromError should return an *Error as-is")
	}
	wrapped := &wrapper{ce}
	if FromError(wrapped, "C200") != ce {
		t.Error("FromError should find an *Error in the chain")
	}

	stdErr := stderrors.New("boom")
	if got := FromError(stdErr, "C200"); got.Wrapped != stdErr || got.Code != "C200" {
		t.Errorf("FromError(std) = %+v", got)
	}
}

type wrapper struct{ err error }

func (w *wrapper) Error() string { return "wrapped: " + w.err.Error() }
func (w *wrapper) Unwrap() error { return w.err }

func TestLocation_String(t *testing.T) {
	tests := []struct {
		name string
		loc  *Location
		want string
	}{
		{"nil location", nil, ""},
		{"with column", &Location{File: "c2w.json", Line: 10, Column: 5}, "c2w.json:10:5"},
		{"without column", &Location{File: "c2w.json", Line: 10}, "c2w.json:10"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.loc.String(); got != tt.want {
				t.Errorf("String() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRender(t *testing.T) {
	path := writeConfig(t, sampleConfig)
	err := New("C102").
		WithLocation(path, 3, 19).
		WithSuggestion("Use a number of milliseconds, e.g. 500").
		Wrap(stderrors.New("cannot unmarshal string"))

	formatted := err.Render(false)
	for _, want := range []string{
		"ERROR C102: Invalid configuration value",
		path + ":3:19",
		`→    3 │     "timeout_ms": "fast",`,
		"       │                   ^",
		"Hint: Use a number of milliseconds",
		"Cause: cannot unmarshal string",
	} {
		if !strings.Contains(formatted, want) {
			t.Errorf("Render(false) lacks %q:\n%s", want, formatted)
		}
	}
	if strings.Contains(formatted, "\033[") {
		t.Errorf("Render(false) contains ANSI codes:\n%s", formatted)
	}
	if colored := err.Render(true); !strings.Contains(colored, ansiRed) {
		t.Errorf("Render(true) has no color:\n%s", colored)
	}
}

func TestMarshalJSON(t *testing.T) {
	data, err := json.Marshal(New("C103").WithLocation("c2w.json", 10, 5).Wrap(stderrors.New("bad port")))
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	var v struct {
		Code     string `json:"code"`
		Category string `json:"category"`
		Cause    string `json:"cause"`
		Location struct {
			Line int `json:"line"`
		} `json:"location"`
	}
	if err := json.Unmarshal(data, &v); err != nil {
		t.Fatalf("Unmarshal(%s) error = %v", data, err)
	}
	if v.Code != "C103" || v.Category != "config" || v.Cause != "bad port" || v.Location.Line != 10 {
		t.Errorf("Marshal() = %s", data)
	}
}

func TestPrinter(t *testing.T) {
	tests := []struct {
		name string
		p    Printer
		err  error
		want []string
	}{
		{"text coded", Printer{Output: OutputText}, New("C201"), []string{"ERROR C201: Cannot listen"}},
		{"text plain", Printer{Output: OutputText}, stderrors.New("boom"), []string{"ERROR: boom"}},
		{"json coded", Printer{Output: OutputJSON}, New("C201"), []string{`"code":"C201"`, `"category":"startup"`}},
		{"json plain", Printer{Output: OutputJSON}, stderrors.New("boom"), []string{`{"message":"boom"}`}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var b strings.Builder
			tt.p.Print(&b, tt.err)
			for _, want := range tt.want {
				if !strings.Contains(b.String(), want) {
					t.Errorf("Print() = %q, want it to contain %q", b.String(), want)
				}
			}
		})
	}
}

func TestNewPrinter(t *testing.T) {
	var b strings.Builder
	if p := NewPrinter(&b); p.Color || p.Output != OutputText {
		t.Errorf("NewPrinter(builder) = %+v, want uncolored text", p)
	}
}

func TestParseOutput(t *testing.T) {
	tests := []struct {
		in      string
		want    Output
		wantErr bool
	}{
		{"text", OutputText, false},
		{"JSON", OutputJSON, false},
		{"yaml", "", true},
	}
	for _, tt := range tests {
		got, err := ParseOutput(tt.in)
		if got != tt.want || (err != nil) != tt.wantErr {
			t.Errorf("ParseOutput(%q) = %q, %v; want %q, error %v", tt.in, got, err, tt.want, tt.wantErr)
		}
	}
}

func TestRegistry(t *testing.T) {
	for _, code := range []string{"C100", "C101", "C102", "C103", "C104", "C105", "C200", "C201", "C202", "C203"} {
		tmpl, ok := Lookup(code)
		if !ok || tmpl.Message == "" {
			t.Errorf("Lookup(%q) = %+v, %v", code, tmpl, ok)
		}
		prefix := map[Category]string{CategoryConfig: "C1", CategoryStartup: "C2"}[tmpl.Category]
		if prefix == "" || !strings.HasPrefix(code, prefix) {
			t.Errorf("code %s in category %q", code, tmpl.Category)
		}
	}
	if _, ok := Lookup("C999"); ok {
		t.Error("Lookup(C999) ok, want false")
	}
}

func TestWrapText(t *testing.T) {
	tests := []struct {
		text  string
		width int
		want  []string
	}{
		{"short text", 100, []string{"short text"}},
		{"this is a longer text that should be wrapped", 20, []string{"this is a longer", "text that should be", "wrapped"}},
		{"", 10, nil},
		{"unbreakable-word here", 5, []string{"unbreakable-word", "here"}},
	}
	for _, tt := range tests {
		got := wrapText(tt.text, tt.width)
		if strings.Join(got, "|") != strings.Join(tt.want, "|") {
			t.Errorf("wrapText(%q, %d) = %q, want %q", tt.text, tt.width, got, tt.want)
		}
	}
}
