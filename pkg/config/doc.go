// Package config loads the EvorBrain application configuration and parses
// declarative workspace documents.
//
// # Application configuration
//
// Config is read from <data-dir>/config.yaml with gopkg.in/yaml.v3 and
// checked with go-playground/validator. A missing file yields Default().
// The data directory comes from the --data-dir flag, EVORBRAIN_DATA_DIR,
// the file's data_dir key or $XDG_DATA_HOME/com.evorbrain.app, in that
// order. The database path must resolve inside the data directory;
// SecurePath rejects ".." traversal and symbolic link escapes with a
// permission denied error.
//
// # Workspace documents
//
// A workspace describes areas, goals, projects and tasks in CUE:
//
//	areas: health: {
//		name:  "Health"
//		color: "#10B981"
//		goals: run: {
//			name: "Run a marathon"
//			projects: plan: {
//				name: "Training plan"
//				tasks: w1: {
//					name:     "Week 1"
//					priority: "high"
//					subtasks: d1: name: "Day 1"
//				}
//			}
//		}
//	}
//
// CUEParser compiles one or more files, unifies them, applies the
// embedded #Workspace definition and decodes the result into Workspace.
// Errors carry file, line and CUE path so they can be reported next to
// the offending field.
//
//	parser := config.NewCUEParser()
//	parsed, err := parser.Parse(ctx, []string{"life.cue"})
//	if err != nil {
//		return err
//	}
//	if err := parsed.Err(); err != nil {
//		return err
//	}
//
// The engine package turns a Workspace into an import plan.
package config
