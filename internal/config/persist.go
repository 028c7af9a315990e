package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strconv"
	"sync"

	"gopkg.in/yaml.v3"
)

// persistMu serializes document writes within this process. Writers in other
// processes are fenced off by the lock file below.
var persistMu sync.Mutex

// ErrConfigLocked indicates another writer currently owns the config document.
var ErrConfigLocked = errors.New("config file is locked by another writer")

// TokenFields is the set of credential-owned keys inside the twitter section.
// Only these keys are rewritten during a token persist; every other key and
// section of the document is preserved as-is.
type TokenFields struct {
	AccessToken    string
	RefreshToken   string
	TokenExpiresAt string
}

// SaveTokenFields merges the given credential fields into the YAML document
// at configFile using read-merge-write semantics: the document is parsed,
// only the twitter.access_token / twitter.refresh_token /
// twitter.token_expires_at scalars are replaced, and the result is written
// back. Comments, key order, and unrelated sections survive the round trip.
//
// The write is guarded by an in-process mutex and an exclusive lock file so a
// concurrently running interactive authorization tool and the agent reject
// each other instead of interleaving writes.
func SaveTokenFields(configFile string, fields TokenFields) error {
	persistMu.Lock()
	defer persistMu.Unlock()

	unlock, err := acquireFileLock(configFile)
	if err != nil {
		return err
	}
	defer unlock()

	data, err := os.ReadFile(configFile)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	var root yaml.Node
	if err = yaml.Unmarshal(data, &root); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}
	if root.Kind == 0 || len(root.Content) == 0 {
		// Empty document, start a fresh mapping.
		root = yaml.Node{
			Kind:    yaml.DocumentNode,
			Content: []*yaml.Node{{Kind: yaml.MappingNode, Tag: "!!map"}},
		}
	}

	setNestedScalar(root.Content[0], []string{"twitter", "access_token"}, fields.AccessToken)
	setNestedScalar(root.Content[0], []string{"twitter", "refresh_token"}, fields.RefreshToken)
	setNestedScalar(root.Content[0], []string{"twitter", "token_expires_at"}, fields.TokenExpiresAt)

	var buf bytes.Buffer
	encoder := yaml.NewEncoder(&buf)
	encoder.SetIndent(2)
	if err = encoder.Encode(&root); err != nil {
		return fmt.Errorf("failed to encode config file: %w", err)
	}
	if err = encoder.Close(); err != nil {
		return fmt.Errorf("failed to finalize config encoding: %w", err)
	}

	if err = os.WriteFile(configFile, buf.Bytes(), 0o600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// setNestedScalar walks the mapping nodes along path, creating missing
// mappings, and sets the final key to a string scalar with the given value.
// Existing node style is preserved so quoting in the document stays stable.
func setNestedScalar(node *yaml.Node, path []string, value string) {
	if node == nil || node.Kind != yaml.MappingNode || len(path) == 0 {
		return
	}

	key := path[0]
	for i := 0; i+1 < len(node.Content); i += 2 {
		keyNode := node.Content[i]
		valueNode := node.Content[i+1]
		if keyNode.Value != key {
			continue
		}
		if len(path) == 1 {
			valueNode.Kind = yaml.ScalarNode
			valueNode.Tag = "!!str"
			valueNode.Value = value
			valueNode.Content = nil
			return
		}
		if valueNode.Kind != yaml.MappingNode {
			valueNode.Kind = yaml.MappingNode
			valueNode.Tag = "!!map"
			valueNode.Value = ""
			valueNode.Content = nil
		}
		setNestedScalar(valueNode, path[1:], value)
		return
	}

	// Key not present, append it.
	keyNode := &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: key}
	if len(path) == 1 {
		node.Content = append(node.Content, keyNode,
			&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: value})
		return
	}
	child := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
	node.Content = append(node.Content, keyNode, child)
	setNestedScalar(child, path[1:], value)
}

// acquireFileLock creates an exclusive lock file next to the config document.
// It fails with ErrConfigLocked when the lock already exists, which means
// another process (for example the interactive login tool) is writing.
func acquireFileLock(configFile string) (func(), error) {
	lockFile := configFile + ".lock"
	f, err := os.OpenFile(lockFile, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		if os.IsExist(err) {
			return nil, fmt.Errorf("%w (%s)", ErrConfigLocked, lockFile)
		}
		return nil, fmt.Errorf("failed to create lock file: %w", err)
	}
	_, _ = f.WriteString(strconv.Itoa(os.Getpid()))
	_ = f.Close()

	return func() {
		_ = os.Remove(lockFile)
	}, nil
}
