package parser

import (
	"archive/zip"
	"bytes"
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"
	"github.com/nguyenthenguyen/docx"
	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/documentloaders"
	"github.com/tmc/langchaingo/schema"
	"github.com/xuri/excelize/v2"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"

	"mammo-rag/internal/models"
)

// LoadOptions controls directory ingestion.
type LoadOptions struct {
	// SortPaths processes files in lexical path order so rebuilds of the same
	// corpus produce the same chunk sequence.
	SortPaths bool
}

type readFunc func(ctx context.Context, path string) ([]models.Document, error)

var readers = map[string]readFunc{
	".pdf":  parsePDF,
	".txt":  parseText,
	".docx": parseDOCX,
	".pptx": parsePPTX,
	".csv":  parseCSV,
	".md":   parseMarkdown,
	".xlsx": parseXLSX,
}

// Supported reports whether files with the extension of path are ingested.
func Supported(path string) bool {
	_, ok := readers[strings.ToLower(filepath.Ext(path))]
	return ok
}

// LoadDirectory reads every supported file below root. Files that fail to
// parse are logged, reported as skipped and do not abort the walk.
func LoadDirectory(ctx context.Context, root string, opts LoadOptions) ([]models.Document, []models.LoadResult, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, nil, models.Wrap(models.ErrNotFound, "corpus folder "+root, err)
	}
	if !info.IsDir() {
		return nil, nil, models.Errorf(models.ErrNotFound, "corpus folder %s is not a directory", root)
	}

	var paths []string
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			log.Warn().Err(err).Str("path", path).Msg("Skipping unreadable path")
			if d != nil && d.IsDir() && path != root {
				return fs.SkipDir
			}
			return nil
		}
		if d.IsDir() || !Supported(path) {
			return nil
		}
		paths = append(paths, path)
		return nil
	})
	if err != nil {
		return nil, nil, models.Wrap(models.ErrNotFound, "walk corpus folder "+root, err)
	}
	if opts.SortPaths {
		sort.Strings(paths)
	}

	var docs []models.Document
	results := make([]models.LoadResult, 0, len(paths))
	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}
		fileDocs, err := LoadFile(ctx, path)
		if err != nil {
			log.Warn().Err(err).Str("path", path).Msg("Failed to load file")
			results = append(results, models.LoadResult{Path: path, Skipped: true, Reason: err.Error()})
			continue
		}
		docs = append(docs, fileDocs...)
		results = append(results, models.LoadResult{Path: path, Documents: len(fileDocs)})
	}

	log.Info().Int("files", len(paths)).Int("documents", len(docs)).Msg("Total raw documents loaded")
	return docs, results, nil
}

// LoadFile dispatches path to the reader registered for its extension.
func LoadFile(ctx context.Context, path string) (docs []models.Document, err error) {
	ext := strings.ToLower(filepath.Ext(path))
	read, ok := readers[ext]
	if !ok {
		return nil, fmt.Errorf("unsupported file format: %s", ext)
	}

	// the pdf reader panics on some malformed inputs
	defer func() {
		if r := recover(); r != nil {
			docs, err = nil, fmt.Errorf("parse %s: %v", filepath.Base(path), r)
		}
	}()
	docs, err = read(ctx, path)
	if err != nil {
		return nil, err
	}
	for i := range docs {
		docs[i].Source = path
		if docs[i].Metadata == nil {
			docs[i].Metadata = map[string]string{}
		}
		docs[i].Metadata["source"] = path
		docs[i].Metadata["format"] = strings.TrimPrefix(ext, ".")
	}
	return docs, nil
}

func parsePDF(_ context.Context, filePath string) ([]models.Document, error) {
	f, reader, err := pdf.Open(filePath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var docs []models.Document
	numPages := reader.NumPage()
	for i := 1; i <= numPages; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		pageText, err := page.GetPlainText(nil)
		if err != nil {
			return nil, fmt.Errorf("page %d: %w", i, err)
		}
		if strings.TrimSpace(pageText) == "" {
			continue
		}
		docs = append(docs, models.Document{
			Content: pageText,
			Metadata: map[string]string{
				"page":        strconv.Itoa(i),
				"total_pages": strconv.Itoa(numPages),
			},
		})
	}
	return docs, nil
}

func parseText(ctx context.Context, filePath string) ([]models.Document, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, err
	}
	if !utf8.Valid(data) {
		return nil, fmt.Errorf("%s is not valid UTF-8", filepath.Base(filePath))
	}
	loaded, err := documentloaders.NewText(bytes.NewReader(data)).Load(ctx)
	if err != nil {
		return nil, err
	}
	return fromSchema(loaded), nil
}

func parseCSV(ctx context.Context, filePath string) ([]models.Document, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	loaded, err := documentloaders.NewCSV(f).Load(ctx)
	if err != nil {
		return nil, err
	}
	return fromSchema(loaded), nil
}

var (
	docxParagraphEnd = regexp.MustCompile(`</w:p>`)
	docxTextRun      = regexp.MustCompile(`(?s)<w:t(?:\s[^>]*)?>(.*?)</w:t>`)
	docxBreak        = regexp.MustCompile(`<w:(?:br|cr)\s*/>`)
	docxTab          = regexp.MustCompile(`<w:tab\s*/>`)
)

func parseDOCX(_ context.Context, filePath string) ([]models.Document, error) {
	r, err := docx.ReadDocxFile(filePath)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	content := docxText(r.Editable().GetContent())
	if strings.TrimSpace(content) == "" {
		return nil, nil
	}
	return []models.Document{{Content: content}}, nil
}

// docxText extracts the visible text of a WordprocessingML body, one line per
// paragraph.
func docxText(xmlContent string) string {
	var out strings.Builder
	for _, para := range docxParagraphEnd.Split(xmlContent, -1) {
		para = docxBreak.ReplaceAllString(para, "<w:t>\n</w:t>")
		para = docxTab.ReplaceAllString(para, "<w:t>\t</w:t>")
		var line strings.Builder
		for _, m := range docxTextRun.FindAllStringSubmatch(para, -1) {
			line.WriteString(unescapeXML(m[1]))
		}
		if line.Len() == 0 {
			continue
		}
		if out.Len() > 0 {
			out.WriteString("\n")
		}
		out.WriteString(line.String())
	}
	return out.String()
}

var xmlEntities = strings.NewReplacer("&lt;", "<", "&gt;", ">", "&quot;", `"`, "&apos;", "'", "&amp;", "&")

func unescapeXML(s string) string {
	return xmlEntities.Replace(s)
}

var (
	pptxSlideFile = regexp.MustCompile(`^ppt/slides/slide(\d+)\.xml$`)
	pptxParaEnd   = regexp.MustCompile(`</a:p>`)
	pptxTextRun   = regexp.MustCompile(`(?s)<a:t(?:\s[^>]*)?>(.*?)</a:t>`)
)

type pptxSlide struct {
	num  int
	file *zip.File
}

func parsePPTX(_ context.Context, filePath string) ([]models.Document, error) {
	f, err := zip.OpenReader(filePath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var slides []pptxSlide
	for _, file := range f.File {
		m := pptxSlideFile.FindStringSubmatch(file.Name)
		if m == nil {
			continue
		}
		num, _ := strconv.Atoi(m[1])
		slides = append(slides, pptxSlide{num: num, file: file})
	}
	sort.Slice(slides, func(i, j int) bool { return slides[i].num < slides[j].num })

	var docs []models.Document
	for _, slide := range slides {
		rc, err := slide.file.Open()
		if err != nil {
			return nil, fmt.Errorf("slide %d: %w", slide.num, err)
		}
		data, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return nil, fmt.Errorf("slide %d: %w", slide.num, err)
		}
		content := slideText(string(data))
		if strings.TrimSpace(content) == "" {
			continue
		}
		docs = append(docs, models.Document{
			Content: content,
			Metadata: map[string]string{
				"slide":        strconv.Itoa(slide.num),
				"total_slides": strconv.Itoa(len(slides)),
			},
		})
	}
	return docs, nil
}

// slideText extracts the DrawingML text runs of a slide, one line per
// paragraph.
func slideText(xmlContent string) string {
	var lines []string
	for _, para := range pptxParaEnd.Split(xmlContent, -1) {
		var line strings.Builder
		for _, m := range pptxTextRun.FindAllStringSubmatch(para, -1) {
			line.WriteString(unescapeXML(m[1]))
		}
		if line.Len() > 0 {
			lines = append(lines, line.String())
		}
	}
	return strings.Join(lines, "\n")
}

func parseMarkdown(_ context.Context, filePath string) ([]models.Document, error) {
	src, err := os.ReadFile(filePath)
	if err != nil {
		return nil, err
	}
	content, err := markdownText(src)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(content) == "" {
		return nil, nil
	}
	return []models.Document{{Content: content}}, nil
}

// markdownText renders the textual content of a markdown source, dropping
// markup. Blocks are separated by a blank line.
func markdownText(src []byte) (string, error) {
	root := goldmark.New().Parser().Parse(text.NewReader(src))

	var out strings.Builder
	err := ast.Walk(root, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			if n.Type() == ast.TypeBlock && n.Kind() != ast.KindDocument && n.Kind() != ast.KindListItem && n.Kind() != ast.KindList {
				out.WriteString("\n\n")
			}
			return ast.WalkContinue, nil
		}
		switch node := n.(type) {
		case *ast.Text:
			out.Write(node.Segment.Value(src))
			if node.SoftLineBreak() || node.HardLineBreak() {
				out.WriteString("\n")
			}
		case *ast.CodeBlock, *ast.FencedCodeBlock:
			lines := n.Lines()
			for i := 0; i < lines.Len(); i++ {
				seg := lines.At(i)
				out.Write(seg.Value(src))
			}
			return ast.WalkSkipChildren, nil
		case *ast.AutoLink:
			out.Write(node.URL(src))
		}
		return ast.WalkContinue, nil
	})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out.String()), nil
}

func parseXLSX(_ context.Context, filePath string) ([]models.Document, error) {
	f, err := excelize.OpenFile(filePath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var docs []models.Document
	for sheetNum, sheetName := range f.GetSheetList() {
		rows, err := f.GetRows(sheetName)
		if err != nil {
			return nil, fmt.Errorf("sheet %s: %w", sheetName, err)
		}
		var content strings.Builder
		for _, row := range rows {
			content.WriteString(strings.Join(row, "\t"))
			content.WriteString("\n")
		}
		if strings.TrimSpace(content.String()) == "" {
			continue
		}
		docs = append(docs, models.Document{
			Content: content.String(),
			Metadata: map[string]string{
				"sheet":       sheetName,
				"sheet_index": strconv.Itoa(sheetNum + 1),
			},
		})
	}
	return docs, nil
}

func fromSchema(in []schema.Document) []models.Document {
	docs := make([]models.Document, 0, len(in))
	for _, d := range in {
		if strings.TrimSpace(d.PageContent) == "" {
			continue
		}
		meta := make(map[string]string, len(d.Metadata))
		for k, v := range d.Metadata {
			meta[k] = fmt.Sprint(v)
		}
		docs = append(docs, models.Document{Content: d.PageContent, Metadata: meta})
	}
	return docs
}
