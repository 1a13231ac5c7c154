package job

import (
	"testing"

	apperrors "docconv/internal/pkg/errors"
)

func TestDecode(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		want    ConversionJob
		wantErr bool
	}{
		{
			name: "minimal pdf job",
			body: `{"uuid":"a1","urlEncodedFileName":"report.docx","extension":"docx"}`,
			want: ConversionJob{UUID: "a1", EncodedFileName: "report.docx", Extension: "docx", Output: FormatPDF},
		},
		{
			name: "html output is case-insensitive",
			body: `{"uuid":"a1","urlEncodedFileName":"deck","extension":"pptx","output":"HTML"}`,
			want: ConversionJob{UUID: "a1", EncodedFileName: "deck", Extension: "pptx", Output: FormatHTML},
		},
		{
			name: "fields are trimmed",
			body: `{"uuid":" a1 ","urlEncodedFileName":" r ","extension":" .docx "}`,
			want: ConversionJob{UUID: "a1", EncodedFileName: "r", Extension: "docx", Output: FormatPDF},
		},
		{name: "missing uuid", body: `{"urlEncodedFileName":"r","extension":"docx"}`, wantErr: true},
		{name: "blank uuid", body: `{"uuid":"  ","urlEncodedFileName":"r","extension":"docx"}`, wantErr: true},
		{name: "missing file name", body: `{"uuid":"a1","extension":"docx"}`, wantErr: true},
		{name: "missing extension", body: `{"uuid":"a1","urlEncodedFileName":"r"}`, wantErr: true},
		{name: "unknown output", body: `{"uuid":"a1","urlEncodedFileName":"r","extension":"docx","output":"png"}`, wantErr: true},
		{name: "uuid with separator", body: `{"uuid":"../etc","urlEncodedFileName":"r","extension":"docx"}`, wantErr: true},
		{name: "not an object", body: `["a1"]`, wantErr: true},
		{name: "null", body: `null`, wantErr: true},
		{name: "empty", body: ``, wantErr: true},
		{name: "garbage", body: `{"uuid":`, wantErr: true},
		{name: "wrong type", body: `{"uuid":5,"urlEncodedFileName":"r","extension":"docx"}`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Decode([]byte(tt.body))
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %+v", got)
				}
				if !apperrors.IsDecode(err) {
					t.Errorf("expected decode error code, got %s", apperrors.GetCode(err))
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("Decode() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestDecodeIsPure(t *testing.T) {
	body := []byte(`{"uuid":"a1","urlEncodedFileName":"report.docx","extension":"docx","output":"pdf"}`)

	first, err := Decode(body)
	if err != nil {
		t.Fatal(err)
	}
	second, err := Decode(body)
	if err != nil {
		t.Fatal(err)
	}
	if first != second {
		t.Errorf("decoding the same bytes twice differs: %+v vs %+v", first, second)
	}
}

func TestKindOf(t *testing.T) {
	tests := map[string]Kind{
		"docx": KindDocument,
		".DOC": KindDocument,
		"pptx": KindPresentation,
		"ppsx": KindPresentation,
		"odp":  KindPresentation,
		"xlsx": KindSpreadsheet,
		"exe":  KindUnknown,
		"":     KindUnknown,
	}
	for ext, want := range tests {
		if got := KindOf(ext); got != want {
			t.Errorf("KindOf(%q) = %s, want %s", ext, got, want)
		}
	}
}

func TestUploadsSidecar(t *testing.T) {
	tests := []struct {
		ext    string
		output Format
		want   bool
	}{
		{"pptx", FormatHTML, true},
		{"PPT", FormatHTML, true},
		{"pptx", FormatPDF, false},
		{"docx", FormatHTML, false},
	}
	for _, tt := range tests {
		j := ConversionJob{UUID: "u", EncodedFileName: "f", Extension: tt.ext, Output: tt.output}
		if got := j.UploadsSidecar(); got != tt.want {
			t.Errorf("UploadsSidecar(%s, %s) = %v, want %v", tt.ext, tt.output, got, tt.want)
		}
	}
}

func TestValidUUID(t *testing.T) {
	for _, id := range []string{"a1", "3f1c-aa", "file.v2"} {
		if !ValidUUID(id) {
			t.Errorf("expected %q to be valid", id)
		}
	}
	for _, id := range []string{"", ".", "..", "a/b", `a\b`, "a..b"} {
		if ValidUUID(id) {
			t.Errorf("expected %q to be rejected", id)
		}
	}
}
