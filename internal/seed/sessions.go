package seed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/neudinger/acctmigrate/internal/artifact"
)

// ArtifactReader loads schedule files. *artifact.Store satisfies it.
type ArtifactReader interface {
	Read(ctx context.Context, uri string) ([]byte, error)
}

// ReadSessions loads a list of session objects from a JSON or YAML file. A
// numeric "capacity" attribute becomes Session.Capacity.
func ReadSessions(ctx context.Context, store ArtifactReader, uri string) ([]Session, error) {
	data, err := store.Read(ctx, uri)
	if err != nil {
		return nil, fmt.Errorf("failed to read schedule: %w", err)
	}

	var raw []map[string]any
	switch artifact.Ext(uri) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &raw)
	default:
		err = json.Unmarshal(data, &raw)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to decode schedule %s: %w", uri, err)
	}
	if len(raw) == 0 {
		return nil, errors.New("schedule contains no sessions")
	}

	sessions := make([]Session, 0, len(raw))
	for i, fields := range raw {
		s := Session{Fields: fields}
		if c, ok := fields["capacity"]; ok {
			n, err := toInt(c)
			if err != nil {
				return nil, fmt.Errorf("session %d: capacity: %w", i+1, err)
			}
			s.Capacity = n
			delete(fields, "capacity")
		}
		for _, reserved := range []string{"registered", "createdAt", "updatedAt"} {
			delete(fields, reserved)
		}
		sessions = append(sessions, s)
	}
	return sessions, nil
}

func toInt(v any) (int, error) {
	switch n := v.(type) {
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case float64:
		if n != float64(int(n)) {
			return 0, fmt.Errorf("not a whole number: %v", n)
		}
		return int(n), nil
	default:
		return 0, fmt.Errorf("unsupported type %T", v)
	}
}
