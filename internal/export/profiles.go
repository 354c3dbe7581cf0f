package export

import (
	"context"
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/neudinger/acctmigrate/internal/docstore"
)

// DefaultProfilesCollection holds one profile document per account, keyed by
// the account UID.
const DefaultProfilesCollection = "users"

// Profile is a profile document flattened for export: every stored field
// plus "uid", the document key.
type Profile map[string]any

// UID returns the document key of the profile.
func (p Profile) UID() string {
	uid, _ := p["uid"].(string)
	return uid
}

// String returns the named field when it holds a string.
func (p Profile) String(field string) string {
	v, _ := p[field].(string)
	return v
}

// Profiles flattens documents in order. The document key wins over a stored
// "uid" field.
func Profiles(docs []docstore.Document) []Profile {
	out := make([]Profile, 0, len(docs))
	for _, doc := range docs {
		p := make(Profile, len(doc.Fields)+1)
		for name, v := range doc.Fields {
			p[name] = v
		}
		p["uid"] = doc.Key
		out = append(out, p)
	}
	return out
}

// WriteProfiles persists profiles at uri as YAML (.yaml/.yml) or JSON.
func WriteProfiles(ctx context.Context, store Artifacts, uri string, profiles []Profile) error {
	if profiles == nil {
		profiles = []Profile{}
	}

	var (
		data []byte
		err  error
	)
	if isYAML(uri) {
		data, err = yaml.Marshal(profiles)
	} else {
		data, err = json.MarshalIndent(profiles, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("failed to encode profiles: %w", err)
	}

	if err := store.Write(ctx, uri, data); err != nil {
		return fmt.Errorf("failed to write profiles: %w", err)
	}
	return nil
}
