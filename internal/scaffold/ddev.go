package scaffold

import (
	"bytes"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/NielsdaWheelz/eddev/internal/fs"
)

// DdevDir is ddev's configuration directory inside a project.
const DdevDir = ".ddev"

// Overlay file names. ddev merges config.*.yaml into config.yaml and starts
// every docker-compose.*.yaml service alongside the web container.
const (
	ConfigOverlayFile   = "config.eddev.yaml"
	DynamoDBComposeFile = "docker-compose.dynamodb.yaml"
)

const generatedHeader = "# Generated by eddev. Changes are overwritten when the environment is recreated.\n"

// DynamoDB local settings shared by the container and the web environment.
const (
	DynamoDBImage        = "amazon/dynamodb-local:latest"
	DynamoDBPort         = "8000"
	DynamoDBSessionTable = "sessions"
)

// DdevOptions selects which overlays to generate.
type DdevOptions struct {
	IncludeDynamoDB bool
}

// File is a generated file relative to the ddev directory.
type File struct {
	RelPath string
	Content []byte
}

type ddevConfig struct {
	WebEnvironment []string `yaml:"web_environment,omitempty"`
}

type composeFile struct {
	Services map[string]composeService `yaml:"services"`
}

type composeService struct {
	ContainerName string            `yaml:"container_name"`
	Image         string            `yaml:"image"`
	Command       []string          `yaml:"command,omitempty"`
	Expose        []string          `yaml:"expose,omitempty"`
	Labels        map[string]string `yaml:"labels,omitempty"`
}

// DdevOverlays renders the overlay files for opts.
func DdevOverlays(opts DdevOptions) ([]File, error) {
	cfg := ddevConfig{
		WebEnvironment: []string{"SS_ENVIRONMENT_TYPE=dev"},
	}
	if opts.IncludeDynamoDB {
		cfg.WebEnvironment = append(cfg.WebEnvironment,
			"AWS_DYNAMODB_ENDPOINT=http://dynamodb:"+DynamoDBPort,
			"AWS_DYNAMODB_SESSION_TABLE="+DynamoDBSessionTable,
			"AWS_REGION_NAME=ap-southeast-2",
			"AWS_ACCESS_KEY=local",
			"AWS_SECRET_KEY=local",
		)
	}

	data, err := marshal(cfg)
	if err != nil {
		return nil, err
	}
	files := []File{{RelPath: ConfigOverlayFile, Content: data}}

	if opts.IncludeDynamoDB {
		compose := composeFile{Services: map[string]composeService{
			"dynamodb": {
				ContainerName: "ddev-${DDEV_SITENAME}-dynamodb",
				Image:         DynamoDBImage,
				Command:       []string{"-jar", "DynamoDBLocal.jar", "-sharedDb", "-inMemory"},
				Expose:        []string{DynamoDBPort},
				Labels: map[string]string{
					"com.ddev.site-name": "${DDEV_SITENAME}",
					"com.ddev.approot":   "${DDEV_APPROOT}",
				},
			},
		}}
		data, err := marshal(compose)
		if err != nil {
			return nil, err
		}
		files = append(files, File{RelPath: DynamoDBComposeFile, Content: data})
	}
	return files, nil
}

// WriteDdevOverlays writes the overlays into root's ddev directory and
// returns the paths written, relative to root.
func WriteDdevOverlays(fsys fs.FS, root string, opts DdevOptions) ([]string, error) {
	files, err := DdevOverlays(opts)
	if err != nil {
		return nil, err
	}

	dir := filepath.Join(root, DdevDir)
	if err := fsys.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	written := make([]string, 0, len(files))
	for _, f := range files {
		if err := fs.WriteFileAtomic(fsys, filepath.Join(dir, f.RelPath), f.Content, 0o644); err != nil {
			return written, err
		}
		written = append(written, filepath.Join(DdevDir, f.RelPath))
	}
	return written, nil
}

func marshal(v any) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(generatedHeader)
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
