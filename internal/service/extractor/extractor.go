package extractor

import (
	"archive/tar"
	"compress/bzip2"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zip"
	"github.com/klauspost/compress/zstd"
	"github.com/nwaples/rardecode"
	"github.com/ulikunitz/xz"

	"github.com/oshokin/dyst/internal/domain/packages"
	"github.com/oshokin/dyst/internal/logger"
)

const (
	// DefaultDirPermissions is used for every directory created during extraction.
	DefaultDirPermissions os.FileMode = 0o755

	// DefaultFilePermissions is used for entries that carry no permission bits.
	DefaultFilePermissions os.FileMode = 0o644

	// scratchPattern names the temporary file an archive is buffered into.
	scratchPattern = "dyst-payload-*"
)

// format is a recognized archive or compression extension.
type format string

const (
	formatTar  format = "tar"
	formatZip  format = "zip"
	formatGzip format = "gz"
	formatBz2  format = "bz2"
	formatXz   format = "xz"
	formatZstd format = "zst"
	formatRar  format = "rar"
)

// Extractor unpacks downloaded payloads into package directories.
type Extractor struct {
	// scratchDir holds buffered archives, the system temp dir when empty.
	scratchDir string
}

// New creates an extractor buffering archives inside scratchDir.
func New(scratchDir string) *Extractor {
	return &Extractor{scratchDir: scratchDir}
}

// Extract unpacks src into outDir. The format is taken from the last extension of hint.
// Payloads with an unknown extension are written verbatim as outDir/base(hint).
// Every write goes through an os.Root opened on outDir, so no entry or symlink
// chain can place a file outside of it.
func (e *Extractor) Extract(ctx context.Context, src io.Reader, hint, outDir string) error {
	name := filepath.Base(hint)
	if name == "." || !filepath.IsLocal(name) {
		return fmt.Errorf("%w: asset name %q is not a file name", packages.ErrArchive, hint)
	}

	out, err := openTree(outDir)
	if err != nil {
		return err
	}

	defer func() {
		_ = out.root.Close()
	}()

	src = &contextReader{ctx: ctx, r: src}

	kind, ok := detectFormat(name)
	if !ok {
		logger.DebugKV(ctx, "Writing payload verbatim", "file", name)

		return out.writePayload(name, src)
	}

	scratch, err := e.buffer(src)
	if err != nil {
		return err
	}

	defer func() {
		_ = scratch.Close()
		_ = os.Remove(scratch.Name())
	}()

	logger.DebugKV(ctx, "Unpacking archive", "file", name, "format", string(kind))

	switch kind {
	case formatTar:
		return extractTar(ctx, scratch, out)
	case formatZip:
		return extractZip(ctx, scratch, out)
	case formatRar:
		return extractRar(ctx, scratch, out)
	case formatGzip, formatBz2, formatXz, formatZstd:
		return extractCompressed(ctx, scratch, kind, name, out)
	default:
		return fmt.Errorf("%w: unsupported format %s", packages.ErrArchive, kind)
	}
}

// detectFormat maps the last extension of a file name to a recognized format.
func detectFormat(name string) (format, bool) {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(name), "."))

	switch kind := format(ext); kind {
	case formatTar, formatZip, formatGzip, formatBz2, formatXz, formatZstd, formatRar:
		return kind, true
	default:
		return "", false
	}
}

// buffer copies the whole payload to a scratch file and rewinds it.
func (e *Extractor) buffer(src io.Reader) (*os.File, error) {
	scratch, err := os.CreateTemp(e.scratchDir, scratchPattern)
	if err != nil {
		return nil, fsError("create scratch file", err)
	}

	if _, err = io.Copy(&fsWriter{w: scratch}, src); err != nil {
		_ = scratch.Close()
		_ = os.Remove(scratch.Name())

		return nil, transferError("buffer payload", err)
	}

	if _, err = scratch.Seek(0, io.SeekStart); err != nil {
		_ = scratch.Close()
		_ = os.Remove(scratch.Name())

		return nil, fsError("rewind scratch file", err)
	}

	return scratch, nil
}

// extractCompressed handles single-stream compressors. A wrapped tarball is
// unpacked, anything else becomes one file named after the hint minus the extension.
func extractCompressed(ctx context.Context, r io.Reader, kind format, name string, out *tree) error {
	stream, closeStream, err := decompress(r, kind)
	if err != nil {
		return err
	}

	defer closeStream()

	inner := strings.TrimSuffix(name, filepath.Ext(name))
	if strings.EqualFold(filepath.Ext(inner), ".tar") {
		return extractTar(ctx, stream, out)
	}

	if inner == "" {
		inner = name
	}

	return out.writeEntry(inner, stream, inner, DefaultFilePermissions)
}

// decompress opens the decoder for a single-stream format.
func decompress(r io.Reader, kind format) (io.Reader, func(), error) {
	switch kind {
	case formatGzip:
		gz, err := gzip.NewReader(r)
		if err != nil {
			return nil, nil, archiveError("open gzip stream", err)
		}

		return gz, func() { _ = gz.Close() }, nil
	case formatBz2:
		return bzip2.NewReader(r), func() {}, nil
	case formatXz:
		xzReader, err := xz.NewReader(r)
		if err != nil {
			return nil, nil, archiveError("open xz stream", err)
		}

		return xzReader, func() {}, nil
	case formatZstd:
		decoder, err := zstd.NewReader(r)
		if err != nil {
			return nil, nil, archiveError("open zstd stream", err)
		}

		return decoder, decoder.Close, nil
	default:
		return nil, nil, fmt.Errorf("%w: %s is not a compression format", packages.ErrArchive, kind)
	}
}

func extractTar(ctx context.Context, r io.Reader, out *tree) error {
	tarReader := tar.NewReader(r)

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		header, err := tarReader.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}

		if err != nil {
			return archiveError("read tar header", err)
		}

		if header.Typeflag == tar.TypeDir || strings.HasSuffix(header.Name, "/") {
			continue
		}

		target, err := entryName(header.Name)
		if err != nil {
			return err
		}

		switch header.Typeflag {
		case tar.TypeReg, tar.TypeRegA: //nolint:staticcheck // Old archives still carry TypeRegA.
			if err = out.writeEntry(target, tarReader, header.Name, os.FileMode(header.Mode).Perm()); err != nil { //nolint:gosec // Mode bits are masked by Perm.
				return err
			}
		case tar.TypeSymlink:
			if err = out.writeSymlink(ctx, target, header.Linkname); err != nil {
				return err
			}
		default:
			logger.DebugKV(ctx, "Skipping tar entry", "entry", header.Name, "type", string(header.Typeflag))
		}
	}
}

func extractZip(ctx context.Context, scratch *os.File, out *tree) error {
	info, err := scratch.Stat()
	if err != nil {
		return fsError("stat scratch file", err)
	}

	zipReader, err := zip.NewReader(scratch, info.Size())
	if err != nil {
		return archiveError("open zip archive", err)
	}

	for _, file := range zipReader.File {
		if err = ctx.Err(); err != nil {
			return err
		}

		if strings.HasSuffix(file.Name, "/") || file.FileInfo().IsDir() {
			continue
		}

		if !file.Mode().IsRegular() {
			logger.DebugKV(ctx, "Skipping zip entry", "entry", file.Name)
			continue
		}

		target, err := entryName(file.Name)
		if err != nil {
			return err
		}

		if err = out.writeZipEntry(target, file); err != nil {
			return err
		}
	}

	return nil
}

func (t *tree) writeZipEntry(target string, file *zip.File) error {
	entry, err := file.Open()
	if err != nil {
		return archiveError("open zip entry "+file.Name, err)
	}

	defer func() {
		_ = entry.Close()
	}()

	return t.writeEntry(target, entry, file.Name, file.Mode().Perm())
}

func extractRar(ctx context.Context, r io.Reader, out *tree) error {
	rarReader, err := rardecode.NewReader(r, "")
	if err != nil {
		return archiveError("open rar archive", err)
	}

	for {
		if err = ctx.Err(); err != nil {
			return err
		}

		header, err := rarReader.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}

		if err != nil {
			return archiveError("read rar header", err)
		}

		if header.IsDir || strings.HasSuffix(header.Name, "/") {
			continue
		}

		target, err := entryName(header.Name)
		if err != nil {
			return err
		}

		if err = out.writeEntry(target, rarReader, header.Name, header.Mode().Perm()); err != nil {
			return err
		}
	}
}

// tree is an output directory opened as an os.Root.
type tree struct {
	root *os.Root
	// dir is the output directory with symlinks resolved.
	dir string
}

func openTree(outDir string) (*tree, error) {
	if err := os.MkdirAll(outDir, DefaultDirPermissions); err != nil {
		return nil, fsError("create output directory", err)
	}

	dir, err := filepath.EvalSymlinks(outDir)
	if err != nil {
		return nil, fsError("resolve output directory", err)
	}

	root, err := os.OpenRoot(dir)
	if err != nil {
		return nil, fsError("open output directory", err)
	}

	return &tree{root: root, dir: dir}, nil
}

// entryName converts an archive entry name to a path relative to the output
// directory and rejects names escaping it.
func entryName(name string) (string, error) {
	local := filepath.Clean(filepath.FromSlash(name))
	if !filepath.IsLocal(local) {
		return "", fmt.Errorf("%w: entry %q escapes the output directory", packages.ErrArchive, name)
	}

	return local, nil
}

// writeSymlink recreates a tar symlink when its target resolves inside the tree.
// A path that already exists is never replaced, so links checked earlier keep their meaning.
func (t *tree) writeSymlink(ctx context.Context, target, linkname string) error {
	_, err := t.root.Lstat(target)
	if err == nil {
		return fmt.Errorf("%w: duplicate entry %q", packages.ErrArchive, filepath.ToSlash(target))
	}

	if !errors.Is(err, fs.ErrNotExist) {
		return fsError("inspect "+target, err)
	}

	if err = t.mkdirParent(target); err != nil {
		return err
	}

	if !t.resolvesInside(target, linkname) {
		logger.WarnKV(ctx, "Skipping symlink pointing outside the package", "link", target, "target", linkname)
		return nil
	}

	if err = t.root.Symlink(linkname, target); err != nil {
		return fsError("create symlink "+target, err)
	}

	return nil
}

// resolvesInside reports whether a link at target pointing to linkname ends up
// inside the tree. Symlinks already on disk are followed before ".." is applied,
// and ".." is not allowed past the part of the path that exists.
func (t *tree) resolvesInside(target, linkname string) bool {
	link := filepath.FromSlash(linkname)

	raw := link
	if !filepath.IsAbs(link) {
		raw = t.dir + string(filepath.Separator) + filepath.Dir(target) + string(filepath.Separator) + link
	}

	parts := strings.Split(raw, string(filepath.Separator))

	for i := len(parts); i > 0; i-- {
		prefix := strings.Join(parts[:i], string(filepath.Separator))
		if prefix == "" {
			prefix = string(filepath.Separator)
		}

		resolved, err := filepath.EvalSymlinks(prefix)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}

		if err != nil {
			return false
		}

		rest := parts[i:]
		if slices.Contains(rest, "..") {
			return false
		}

		return packages.Within(t.dir, filepath.Join(append([]string{resolved}, rest...)...))
	}

	return false
}

func (t *tree) mkdirParent(target string) error {
	parent := filepath.Dir(target)
	if parent == "." {
		return nil
	}

	if err := t.root.MkdirAll(parent, DefaultDirPermissions); err != nil {
		return fsError("create parent directory", err)
	}

	return nil
}

// writeEntry writes one archive entry, creating its parents first.
func (t *tree) writeEntry(target string, r io.Reader, name string, perm os.FileMode) error {
	if err := t.mkdirParent(target); err != nil {
		return err
	}

	if perm == 0 {
		perm = DefaultFilePermissions
	}

	out, err := t.root.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, perm|0o600)
	if err != nil {
		return fsError("create "+name, err)
	}

	if err = copyEntry(out, r, name); err != nil {
		_ = out.Close()
		return err
	}

	if err = out.Close(); err != nil {
		return fsError("close "+name, err)
	}

	return nil
}

// copyEntry copies decoded archive content; read failures mean a malformed archive.
func copyEntry(out io.Writer, r io.Reader, name string) error {
	_, err := io.Copy(&fsWriter{w: out}, r)
	if err == nil {
		return nil
	}

	if errors.Is(err, packages.ErrFilesystem) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	return archiveError("read entry "+name, err)
}

// writePayload streams a non-archive payload to name.
func (t *tree) writePayload(name string, src io.Reader) error {
	out, err := t.root.OpenFile(name, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, DefaultFilePermissions)
	if err != nil {
		return fsError("create "+name, err)
	}

	if _, err = io.Copy(&fsWriter{w: out}, src); err != nil {
		_ = out.Close()
		return transferError("write payload", err)
	}

	if err = out.Close(); err != nil {
		return fsError("close "+name, err)
	}

	return nil
}

// fsWriter tags write failures so they can be told apart from read failures.
type fsWriter struct {
	w io.Writer
}

func (f *fsWriter) Write(p []byte) (int, error) {
	n, err := f.w.Write(p)
	if err != nil {
		return n, fsError("write", err)
	}

	return n, nil
}

// contextReader stops reading once the context is done.
type contextReader struct {
	ctx context.Context //nolint:containedctx // Bound to a single Extract call.
	r   io.Reader
}

func (c *contextReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}

	return c.r.Read(p)
}

func fsError(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, packages.ErrFilesystem, err)
}

func archiveError(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, packages.ErrArchive, err)
}

// transferError keeps filesystem and cancellation errors as they are and
// classifies any other read failure as a transfer failure.
func transferError(op string, err error) error {
	switch {
	case errors.Is(err, packages.ErrFilesystem),
		errors.Is(err, packages.ErrTransfer),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%s: %w", op, err)
	default:
		return fmt.Errorf("%s: %w: %w", op, packages.ErrTransfer, err)
	}
}
