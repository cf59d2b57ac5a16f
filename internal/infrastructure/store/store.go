package store

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/Masterminds/semver/v3"
	apperrors "github.com/reglet-dev/krew-wasm/internal/application/errors"
	"github.com/reglet-dev/krew-wasm/internal/application/ports"
	"github.com/reglet-dev/krew-wasm/internal/domain/entities"
	"github.com/reglet-dev/krew-wasm/internal/domain/values"
)

// stagingPattern names per-pull download directories below the store root.
const stagingPattern = ".staging-*"

// Store is the symlink-based module store.
// Cross-process access is not synchronized.
type Store struct {
	fetcher    ports.ArtifactFetcher
	logger     *slog.Logger
	layout     Layout
	executable string
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger used for store diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// WithExecutable sets the path launcher symlinks point at.
// Defaults to the running executable.
func WithExecutable(path string) Option {
	return func(s *Store) {
		s.executable = path
	}
}

// New creates a store over layout that materializes artifacts with fetcher.
func New(layout Layout, fetcher ports.ArtifactFetcher, opts ...Option) (*Store, error) {
	s := &Store{
		layout:  layout,
		fetcher: fetcher,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.executable == "" {
		exe, err := os.Executable()
		if err != nil {
			return nil, apperrors.New(apperrors.KindFilesystemError, "store.new", fmt.Errorf("cannot locate host executable: %w", err))
		}
		s.executable = exe
	}

	return s, nil
}

// Layout returns the store's path configuration.
func (s *Store) Layout() Layout {
	return s.layout
}

// Ensure creates the launcher and alias directories if missing.
func (s *Store) Ensure() error {
	for _, dir := range []string{s.layout.BinRoot, s.layout.AliasRoot} {
		//nolint:gosec // G301: store directories are user-owned and must be traversable
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return apperrors.New(apperrors.KindFilesystemError, "store.ensure", err)
		}
	}
	return nil
}

// Pull fetches origin into a staging directory and installs it under the name
// derived from the artifact's file name. The canonical area is only written
// once the install goes ahead, so a collision leaves the store untouched.
//
// With force, an existing module of the same name is removed before the staged
// artifact is moved into place. The sequence is not atomic: a crash between the
// removal and the move leaves the module absent.
func (s *Store) Pull(ctx context.Context, origin string, force bool) (values.ModuleName, error) {
	const op = "store.pull"

	staging, err := s.stagingDir()
	if err != nil {
		return values.ModuleName{}, err
	}
	defer s.removeStaging(staging)

	staged, err := s.fetch(ctx, origin, staging)
	if err != nil {
		return values.ModuleName{}, err
	}

	name, err := values.ModuleNameFromArtifact(staged)
	if err != nil {
		return values.ModuleName{}, apperrors.New(apperrors.KindFetchFailure, op, fmt.Errorf("cannot derive module name from %s: %w", staged, err))
	}

	alias := s.layout.AliasPath(name)
	if _, err := os.Lstat(alias); err == nil {
		existing, _ := s.readAlias(alias)

		if !force {
			return values.ModuleName{}, apperrors.Newf(apperrors.KindNameCollision, op,
				"module %q is already installed from %s; use --force to replace it", name, s.layout.DescribeOrigin(existing))
		}

		s.warnDowngrade(name, existing, staged)

		if err := s.Remove(name); err != nil {
			return values.ModuleName{}, err
		}
	} else if !errors.Is(err, fs.ErrNotExist) {
		return values.ModuleName{}, apperrors.New(apperrors.KindFilesystemError, op, err)
	}

	artifact, err := s.promote(staging, staged)
	if err != nil {
		return values.ModuleName{}, err
	}

	if err := s.link(name, artifact); err != nil {
		s.discard(artifact)
		return values.ModuleName{}, err
	}

	s.logger.Debug("module linked", "module", name.String(), "origin", origin, "path", artifact)
	return name, nil
}

// Remove uninstalls name: the alias and launcher are unlinked, and for artifacts
// in the canonical area the file is deleted and emptied parent directories are
// pruned up to the store root. Pruning failures are ignored.
func (s *Store) Remove(name values.ModuleName) error {
	const op = "store.remove"

	alias := s.layout.AliasPath(name)
	target, err := s.readAlias(alias)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return apperrors.Newf(apperrors.KindNotFound, op, "module %q is not installed", name)
		}
		return apperrors.New(apperrors.KindFilesystemError, op, err)
	}

	for _, path := range []string{s.layout.LauncherPath(name), alias} {
		if err := removeIfExists(path); err != nil {
			return apperrors.New(apperrors.KindFilesystemError, op, err)
		}
	}

	if !s.layout.InCanonicalArea(target) {
		s.logger.Debug("module target outside the store, leaving it in place", "module", name.String(), "path", target)
		return nil
	}

	if err := removeIfExists(target); err != nil {
		return apperrors.New(apperrors.KindFilesystemError, op, err)
	}
	s.prune(filepath.Dir(target))

	s.logger.Debug("module removed", "module", name.String(), "path", target)
	return nil
}

// List enumerates installed modules sorted by name.
func (s *Store) List() ([]entities.InstalledModule, error) {
	entries, err := os.ReadDir(s.layout.AliasRoot)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return []entities.InstalledModule{}, nil
		}
		return nil, apperrors.New(apperrors.KindFilesystemError, "store.list", err)
	}

	modules := make([]entities.InstalledModule, 0, len(entries))
	for _, entry := range entries {
		name, err := values.NewModuleName(entry.Name())
		if err != nil {
			continue
		}

		target, err := s.readAlias(filepath.Join(s.layout.AliasRoot, entry.Name()))
		if err != nil {
			s.logger.Debug("skipping alias entry", "entry", entry.Name(), "error", err)
			continue
		}

		modules = append(modules, entities.InstalledModule{
			Name:    name,
			Target:  target,
			Origin:  s.layout.DescribeOrigin(target),
			InStore: s.layout.InCanonicalArea(target),
		})
	}

	sort.Slice(modules, func(i, j int) bool {
		return modules[i].Name.String() < modules[j].Name.String()
	})

	return modules, nil
}

// Resolve returns the artifact path the alias for name points at.
func (s *Store) Resolve(name values.ModuleName) (string, error) {
	target, err := s.readAlias(s.layout.AliasPath(name))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", apperrors.Newf(apperrors.KindNotFound, "store.resolve", "module %q is not installed", name)
		}
		return "", apperrors.New(apperrors.KindFilesystemError, "store.resolve", err)
	}
	return target, nil
}

func (s *Store) fetch(ctx context.Context, origin, destinationRoot string) (string, error) {
	path, err := s.fetcher.Fetch(ctx, origin, destinationRoot)
	if err != nil {
		if apperrors.KindOf(err) == apperrors.KindUnknown {
			return "", apperrors.New(apperrors.KindFetchFailure, "store.fetch", err)
		}
		return "", err
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return "", apperrors.New(apperrors.KindFilesystemError, "store.fetch", err)
	}
	return abs, nil
}

// stagingDir creates a fresh download directory below the store root.
func (s *Store) stagingDir() (string, error) {
	const op = "store.stage"

	//nolint:gosec // G301: store directories are user-owned and must be traversable
	if err := os.MkdirAll(s.layout.StoreRoot, 0o755); err != nil {
		return "", apperrors.New(apperrors.KindFilesystemError, op, err)
	}
	dir, err := os.MkdirTemp(s.layout.StoreRoot, stagingPattern)
	if err != nil {
		return "", apperrors.New(apperrors.KindFilesystemError, op, err)
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		_ = os.RemoveAll(dir)
		return "", apperrors.New(apperrors.KindFilesystemError, op, err)
	}
	return abs, nil
}

func (s *Store) removeStaging(dir string) {
	if err := os.RemoveAll(dir); err != nil {
		s.logger.Debug("failed to remove staging directory", "path", dir, "error", err)
	}
}

// promote moves a staged artifact to the same relative path below the store
// root. Artifacts the fetcher left outside staging, such as local files, are
// returned unchanged.
func (s *Store) promote(staging, staged string) (string, error) {
	const op = "store.promote"

	if !within(staging, staged) {
		return staged, nil
	}

	rel, err := filepath.Rel(staging, staged)
	if err != nil {
		return "", apperrors.New(apperrors.KindFilesystemError, op, err)
	}
	root, err := filepath.Abs(s.layout.StoreRoot)
	if err != nil {
		return "", apperrors.New(apperrors.KindFilesystemError, op, err)
	}

	dest := filepath.Join(root, rel)
	if !s.layout.InCanonicalArea(dest) {
		return "", apperrors.Newf(apperrors.KindFetchFailure, op, "artifact path %s escapes the canonical area", rel)
	}

	//nolint:gosec // G301: store directories are user-owned and must be traversable
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return "", apperrors.New(apperrors.KindFilesystemError, op, err)
	}
	if err := os.Rename(staged, dest); err != nil {
		s.prune(filepath.Dir(dest))
		return "", apperrors.New(apperrors.KindFilesystemError, op, err)
	}
	return dest, nil
}

// link creates the alias and launcher for name. A launcher failure rolls back the alias.
func (s *Store) link(name values.ModuleName, artifact string) error {
	const op = "store.link"

	if err := s.Ensure(); err != nil {
		return err
	}

	alias := s.layout.AliasPath(name)
	if err := os.Symlink(artifact, alias); err != nil {
		return apperrors.New(apperrors.KindFilesystemError, op, err)
	}

	launcher := s.layout.LauncherPath(name)
	err := removeIfExists(launcher)
	if err == nil {
		err = os.Symlink(s.executable, launcher)
	}
	if err != nil {
		_ = os.Remove(alias)
		return apperrors.New(apperrors.KindFilesystemError, op, err)
	}

	return nil
}

// readAlias returns the absolute target of an alias symlink.
func (s *Store) readAlias(alias string) (string, error) {
	target, err := os.Readlink(alias)
	if err != nil {
		return "", err
	}
	if !filepath.IsAbs(target) {
		target = filepath.Join(filepath.Dir(alias), target)
	}
	return filepath.Clean(target), nil
}

// discard removes a promoted artifact that could not be linked.
func (s *Store) discard(artifact string) {
	if !s.layout.InCanonicalArea(artifact) {
		return
	}
	if err := os.Remove(artifact); err != nil && !errors.Is(err, fs.ErrNotExist) {
		s.logger.Debug("failed to discard fetched artifact", "path", artifact, "error", err)
		return
	}
	s.prune(filepath.Dir(artifact))
}

// prune removes dir and its ancestors while they are empty and below the store root.
func (s *Store) prune(dir string) {
	for s.layout.InCanonicalArea(dir) {
		if err := os.Remove(dir); err != nil {
			return
		}
		s.logger.Debug("pruned empty store directory", "path", dir)
		dir = filepath.Dir(dir)
	}
}

// warnDowngrade logs when a forced pull replaces a module with a lower version tag.
func (s *Store) warnDowngrade(name values.ModuleName, existing, replacement string) {
	oldTag, newTag := artifactTag(existing), artifactTag(replacement)
	if oldTag == "" || newTag == "" {
		return
	}

	oldVersion, err := semver.NewVersion(oldTag)
	if err != nil {
		return
	}
	newVersion, err := semver.NewVersion(newTag)
	if err != nil {
		return
	}

	if newVersion.LessThan(oldVersion) {
		s.logger.Warn("replacing module with an older version",
			"module", name.String(), "installed", oldVersion.String(), "pulled", newVersion.String())
	}
}

// artifactTag returns the ":<tag>" suffix of an artifact file name, if any.
func artifactTag(path string) string {
	base := filepath.Base(path)
	idx := strings.LastIndex(base, ":")
	if idx < 0 {
		return ""
	}
	return base[idx+1:]
}

func removeIfExists(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}
