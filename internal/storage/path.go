package storage

import (
	"fmt"
	"path"
	"regexp"
	"strings"
	"time"
)

const ExportRoot = "exports"

var pathComponentPattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9._-]{0,127}$`)

// BuildExportPath lays out export objects as exports/date=YYYY-MM-DD/<id>.<ext>.
func BuildExportPath(createdAt time.Time, exportID, extension string) (string, error) {
	if err := validatePathComponent(exportID, "export id"); err != nil {
		return "", err
	}
	if err := validatePathComponent(extension, "extension"); err != nil {
		return "", err
	}

	ts := createdAt.UTC()
	return path.Join(
		ExportRoot,
		fmt.Sprintf("date=%04d-%02d-%02d", ts.Year(), ts.Month(), ts.Day()),
		exportID+"."+extension,
	), nil
}

// ValidateExportPath accepts only keys shaped like BuildExportPath output, so
// download and delete routes cannot reach other objects.
func ValidateExportPath(key string) error {
	parts := strings.Split(key, "/")
	if len(parts) != 3 || parts[0] != ExportRoot || !strings.HasPrefix(parts[1], "date=") {
		return fmt.Errorf("invalid export key: %q", key)
	}
	if _, err := time.Parse("2006-01-02", strings.TrimPrefix(parts[1], "date=")); err != nil {
		return fmt.Errorf("invalid export key: %q", key)
	}
	return validatePathComponent(parts[2], "export file name")
}

func validatePathComponent(value, field string) error {
	if !pathComponentPattern.MatchString(value) {
		return fmt.Errorf("invalid %s: %q", field, value)
	}
	return nil
}
