package ticket

import (
	"bytes"
	"errors"
	"fmt"
	"testing"
)

func TestValidateUploads(t *testing.T) {
	t.Parallel()

	eleven := make([]UploadFile, 11)
	for i := range eleven {
		eleven[i] = UploadFile{Name: fmt.Sprintf("f%d.png", i), ContentType: "image/png", Size: 1}
	}

	tests := []struct {
		name    string
		files   []UploadFile
		wantErr error
	}{
		{name: "none", files: nil, wantErr: ErrNoFiles},
		{name: "eleven files", files: eleven, wantErr: ErrTooManyFiles},
		{name: "ten files", files: eleven[:10]},
		{name: "zip rejected", files: []UploadFile{{Name: "a.zip", ContentType: "application/zip", Size: 10}}, wantErr: ErrUnsupportedType},
		{name: "too large", files: []UploadFile{{Name: "a.pdf", ContentType: "application/pdf", Size: MaxUploadBytes + 1}}, wantErr: ErrFileTooLarge},
		{name: "exact limit", files: []UploadFile{{Name: "a.pdf", ContentType: "application/pdf", Size: MaxUploadBytes}}},
		{name: "params stripped", files: []UploadFile{{Name: "a.txt", ContentType: "text/plain; charset=utf-8", Size: 3}}},
		{name: "docx", files: []UploadFile{{Name: "a.docx", ContentType: "application/vnd.openxmlformats-officedocument.wordprocessingml.document", Size: 3}}},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := ValidateUploads(tt.files)
			if tt.wantErr == nil {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestReadAllWithLimit(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		payload   []byte
		maxBytes  int64
		wantErr   bool
		errTooBig bool
	}{
		{
			name:     "within limit",
			payload:  []byte("hello"),
			maxBytes: 8,
		},
		{
			name:      "over limit",
			payload:   []byte("0123456789"),
			maxBytes:  5,
			wantErr:   true,
			errTooBig: true,
		},
		{
			name:     "exact limit",
			payload:  []byte("12345"),
			maxBytes: 5,
		},
		{
			name:     "invalid limit",
			payload:  []byte("x"),
			maxBytes: 0,
			wantErr:  true,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := ReadAllWithLimit(bytes.NewReader(tt.payload), tt.maxBytes)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error")
				}
				if tt.errTooBig && !errors.Is(err, ErrFileTooLarge) {
					t.Fatalf("expected ErrFileTooLarge, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if string(got) != string(tt.payload) {
				t.Fatalf("unexpected payload: %q", string(got))
			}
		})
	}
}
