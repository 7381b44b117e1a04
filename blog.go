package main

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/itchyny/timefmt-go"
	"github.com/otiai10/copy"
	"github.com/sirupsen/logrus"
	"k8s.io/apimachinery/pkg/util/sets"
)

// Blog renders a directory of Markdown posts into a static HTML site.
type Blog struct {
	cfg  Config
	opts Options
	log  logrus.FieldLogger

	theme    *theme
	markdown *markdownRenderer

	// Sub-directories of the content directory.
	contentCategories []string
	// Categories holding posts, set once posts are sorted.
	categories []string
	// Posts by name, nil until loaded.
	posts map[string]*Post
	// Posts in discovery order.
	postOrder []*Post
	// Posts by category newest first, plus allPostsCategory.
	sorted map[string][]*Post
}

type Options struct {
	Logger logrus.FieldLogger
	Now    func() time.Time
}

func (opts *Options) Default() {
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
}

type Option interface {
	Apply(opts *Options)
}

// WithLogger sets the logger used for progress output.
type WithLogger struct {
	Logger logrus.FieldLogger
}

func (l WithLogger) Apply(opts *Options) {
	opts.Logger = l.Logger
}

// Clock sets the time source for the default copyright year.
type Clock func() time.Time

func (c Clock) Apply(opts *Options) {
	opts.Now = c
}

// NewBlog validates cfg, loads the theme and lists the categories.
func NewBlog(cfg Config, opts ...Option) (*Blog, error) {
	b := &Blog{cfg: cfg}
	for _, opt := range opts {
		opt.Apply(&b.opts)
	}
	b.opts.Default()
	b.log = b.opts.Logger

	b.cfg.Default()
	if err := b.cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if b.cfg.Copyright == "" {
		b.cfg.Copyright = fmt.Sprintf("Copyright %d %s", b.opts.Now().Year(), b.cfg.DefaultAuthor)
	}

	var err error
	if b.theme, err = loadTheme(b.cfg.Theme); err != nil {
		return nil, fmt.Errorf("loading theme: %w", err)
	}
	if b.contentCategories, err = listCategories(b.cfg.ContentDirectory); err != nil {
		return nil, fmt.Errorf("listing categories: %w", err)
	}
	if len(b.contentCategories) == 0 {
		return nil, fmt.Errorf("content directory %s has no category directories", b.cfg.ContentDirectory)
	}
	b.markdown = newMarkdownRenderer()

	return b, nil
}

// Generate clears the output directory and renders the whole site into it.
func (b *Blog) Generate(ctx context.Context) error {
	stages := []struct {
		name string
		run  func(ctx context.Context) error
	}{
		{"cleaning output directory", func(context.Context) error { return b.Clean() }},
		{"loading posts", b.loadPosts},
		{"sorting posts", b.sortPosts},
		{"copying static assets", b.copyStaticAssets},
		{"copying post assets", b.copyPostAssets},
		{"generating post pages", b.generatePostPages},
		{"generating category pages", b.generateCategoryPages},
		{"generating home pages", b.generateHomePages},
	}
	for _, stage := range stages {
		if err := ctx.Err(); err != nil {
			return err
		}
		b.log.Debug(stage.name)
		if err := stage.run(ctx); err != nil {
			return fmt.Errorf("%s: %w", stage.name, err)
		}
	}

	b.log.WithFields(logrus.Fields{
		"posts":      len(b.postOrder),
		"categories": len(b.categories),
		"output":     b.cfg.OutputDirectory,
	}).Info("generated blog")
	return nil
}

// Clean drops loaded posts and deletes everything inside the output
// directory, creating it if it does not exist.
func (b *Blog) Clean() error {
	b.posts, b.postOrder, b.sorted = nil, nil, nil

	entries, err := os.ReadDir(b.cfg.OutputDirectory)
	if os.IsNotExist(err) {
		return os.MkdirAll(b.cfg.OutputDirectory, outputDirPerm)
	}
	if err != nil {
		return fmt.Errorf("reading output directory: %w", err)
	}
	for _, entry := range entries {
		if err := os.RemoveAll(filepath.Join(b.cfg.OutputDirectory, entry.Name())); err != nil {
			return fmt.Errorf("removing %s: %w", entry.Name(), err)
		}
	}
	return nil
}

// RecentPosts returns up to number posts of category, newest first,
// skipping the first offset posts. category may be allPostsCategory.
func (b *Blog) RecentPosts(category string, number, offset int) ([]*Post, error) {
	if number <= 0 {
		return nil, fmt.Errorf("number of posts must be positive, got %d", number)
	}
	if b.sorted == nil {
		if err := b.sortPosts(context.Background()); err != nil {
			return nil, err
		}
	}
	if category != allPostsCategory && !sets.NewString(b.categories...).Has(category) {
		return nil, fmt.Errorf("unknown category %q", category)
	}

	posts := b.sorted[category]
	if len(posts) == 0 {
		return []*Post{}, nil
	}
	if offset < 0 || offset >= len(posts) {
		return nil, fmt.Errorf("offset %d out of range for %d posts in %q", offset, len(posts), category)
	}
	end := offset + number
	if end > len(posts) {
		end = len(posts)
	}
	return posts[offset:end], nil
}

func listCategories(contentDir string) ([]string, error) {
	entries, err := os.ReadDir(contentDir)
	if err != nil {
		return nil, err
	}

	var categories []string
	for _, entry := range entries {
		if !entry.IsDir() {
			if entry.Type()&fs.ModeSymlink == 0 {
				continue
			}
			info, err := os.Stat(filepath.Join(contentDir, entry.Name()))
			if err != nil || !info.IsDir() {
				continue
			}
		}
		categories = append(categories, entry.Name())
	}
	return categories, nil
}

func (b *Blog) loadPosts(ctx context.Context) error {
	b.posts = map[string]*Post{}
	b.postOrder = nil
	seen := sets.NewString()

	for _, category := range b.contentCategories {
		categoryDir := filepath.Join(b.cfg.ContentDirectory, category)
		files, err := postFiles(categoryDir)
		if err != nil {
			return fmt.Errorf("finding posts in %s: %w", categoryDir, err)
		}

		for _, file := range files {
			name := strings.ToLower(strings.TrimSuffix(filepath.Base(file), ".md"))
			if seen.Has(name) {
				return fmt.Errorf("post name %q must be unique, found again in %s", name, file)
			}
			seen.Insert(name)

			post, err := b.readPost(file, name, category, categoryDir)
			if err != nil {
				return err
			}
			b.posts[name] = post
			b.postOrder = append(b.postOrder, post)
			b.log.WithField("post", name).Debug("loaded post")
		}
	}

	// Category pages are written to the lower-cased category directory.
	pageDirs := map[string]string{}
	for _, post := range b.postOrder {
		pageDirs[strings.ToLower(post.Category)] = post.Category
	}
	for _, post := range b.postOrder {
		if category, ok := pageDirs[post.Name]; ok {
			return fmt.Errorf("post name %q clashes with the pages of category %q", post.Name, category)
		}
	}
	return nil
}

// postFiles lists every Markdown file below dir in lexical order.
func postFiles(dir string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && strings.HasSuffix(d.Name(), ".md") {
			files = append(files, path)
		}
		return nil
	})
	return files, err
}

func (b *Blog) readPost(file, name, category, categoryDir string) (*Post, error) {
	src, err := os.ReadFile(file)
	if err != nil {
		return nil, fmt.Errorf("reading post: %w", err)
	}
	meta, article, err := b.markdown.Render(src)
	if err != nil {
		return nil, fmt.Errorf("rendering %s: %w", file, err)
	}

	post := &Post{
		Name:         name,
		URL:          name,
		Category:     category,
		SourcePath:   file,
		AssetsDir:    assetsDir(file, name, categoryDir),
		Author:       b.cfg.DefaultAuthor,
		GlobalStyles: []string{},
		LocalStyles:  []string{},
		Article:      template.HTML(article),
		Meta:         meta,
	}

	// Required metadata.
	if v, ok := meta["title"]; ok {
		post.Title = v[0]
	} else {
		return nil, fmt.Errorf("no title metadata specified in %s", file)
	}
	if v, ok := meta["date"]; ok {
		post.Date = v[0]
	} else {
		return nil, fmt.Errorf("no date metadata specified in %s", file)
	}

	if v, ok := meta["global_styles"]; ok {
		post.GlobalStyles = v
	}
	if v, ok := meta["local_styles"]; ok {
		post.LocalStyles = v
	}
	if v, ok := meta["author"]; ok {
		post.Author = v[0]
	}
	if v, ok := meta["description"]; ok {
		post.Description = v[0]
	}
	if v, ok := meta["main_image"]; ok {
		post.MainImage = v[0]
	}
	return post, nil
}

// assetsDir returns the directory shipped alongside a post: the directory
// containing the post when it is named after it, or a sibling directory
// named after the post in the category.
func assetsDir(file, name, categoryDir string) string {
	parent := filepath.Dir(file)
	if strings.ToLower(filepath.Base(parent)) == name {
		return parent
	}
	candidate := filepath.Join(categoryDir, name)
	if info, err := os.Stat(candidate); err == nil && info.IsDir() {
		return candidate
	}
	return ""
}

func (b *Blog) sortPosts(ctx context.Context) error {
	if len(b.posts) == 0 {
		if err := b.loadPosts(ctx); err != nil {
			return err
		}
	}

	sorted := map[string][]*Post{}
	all := make([]*Post, 0, len(b.postOrder))
	for _, post := range b.postOrder {
		published, err := timefmt.Parse(post.Date, b.cfg.DateFormat)
		if err != nil {
			return fmt.Errorf("parsing date %q of post %s: %w", post.Date, post.Name, err)
		}
		post.Published = published
		sorted[post.Category] = append(sorted[post.Category], post)
		all = append(all, post)
	}

	var categories []string
	for _, category := range b.contentCategories {
		if len(sorted[category]) > 0 {
			categories = append(categories, category)
			newestFirst(sorted[category])
		}
	}
	newestFirst(all)
	sorted[allPostsCategory] = all

	b.categories = categories
	b.sorted = sorted
	return nil
}

func newestFirst(posts []*Post) {
	sort.SliceStable(posts, func(i, j int) bool {
		return posts[i].Published.After(posts[j].Published)
	})
}

func (b *Blog) copyStaticAssets(ctx context.Context) error {
	if !b.theme.hasStatic() {
		return nil
	}
	dest := filepath.Join(b.cfg.OutputDirectory, themeStaticDir)
	err := copy.Copy(themeStaticDir, dest, copy.Options{
		FS: b.theme.fsys,
		// Embedded files are read-only.
		PermissionControl: copy.AddPermission(0o200),
	})
	if err != nil {
		return fmt.Errorf("copying theme %q static assets: %w", b.theme.name, err)
	}
	return nil
}

func (b *Blog) copyPostAssets(ctx context.Context) error {
	for _, post := range b.postOrder {
		dest := filepath.Join(b.cfg.OutputDirectory, post.Name)
		if post.AssetsDir == "" {
			if err := os.MkdirAll(dest, outputDirPerm); err != nil {
				return err
			}
			continue
		}

		err := copy.Copy(post.AssetsDir, dest, copy.Options{
			Skip: func(info os.FileInfo, src, dest string) (bool, error) {
				return strings.HasSuffix(info.Name(), ".md"), nil
			},
		})
		if err != nil {
			return fmt.Errorf("copying assets of post %s: %w", post.Name, err)
		}
	}
	return nil
}

func (b *Blog) generatePostPages(ctx context.Context) error {
	for _, post := range b.postOrder {
		page := b.page("..")
		page.PageCategory = post.Category
		page.Author = post.Author
		page.Title = post.Title
		page.Description = post.Description
		page.Post = post

		file := filepath.Join(b.cfg.OutputDirectory, post.Name, firstPageName)
		if err := b.writePage(file, postTemplate, page); err != nil {
			return err
		}
	}
	return nil
}

func (b *Blog) generateCategoryPages(ctx context.Context) error {
	limit := b.cfg.CategoryPagePostLimit
	for _, category := range b.categories {
		dir := filepath.Join(b.cfg.OutputDirectory, strings.ToLower(category))
		if err := os.MkdirAll(dir, outputDirPerm); err != nil {
			return err
		}

		pages := pageCount(len(b.sorted[category]), limit)
		for n := 0; n < pages; n++ {
			posts, err := b.RecentPosts(category, limit, n*limit)
			if err != nil {
				return err
			}

			page := b.page("..")
			page.PageCategory = category
			page.Author = b.cfg.DefaultAuthor
			page.Title = category
			page.Description = fmt.Sprintf("Posts about %s.", category)
			page.Posts = posts
			name, previous, next := pageNames(n, pages)
			page.PreviousPage, page.NextPage = previous, next

			if err := b.writePage(filepath.Join(dir, name), categoryTemplate, page); err != nil {
				return err
			}
		}
	}
	return nil
}

func (b *Blog) generateHomePages(ctx context.Context) error {
	limit := b.cfg.IndexPagePostLimit
	pages := pageCount(len(b.sorted[allPostsCategory]), limit)
	for n := 0; n < pages; n++ {
		posts, err := b.RecentPosts(allPostsCategory, limit, n*limit)
		if err != nil {
			return err
		}

		page := b.page("")
		page.PageCategory = homePageCategory
		page.Author = b.cfg.DefaultAuthor
		page.Title = b.cfg.WebsiteName
		page.Description = b.cfg.WebsiteDescription
		page.Posts = posts
		name, previous, next := pageNames(n, pages)
		page.PreviousPage, page.NextPage = previous, next

		if err := b.writePage(filepath.Join(b.cfg.OutputDirectory, name), homeTemplate, page); err != nil {
			return err
		}
	}
	return nil
}

// page returns the settings shared by every rendered page.
func (b *Blog) page(baseURL string) Page {
	return Page{
		Copyright:   b.cfg.Copyright,
		WebsiteName: b.cfg.WebsiteName,
		BaseURL:     baseURL,
		Categories:  b.categories,
	}
}

func (b *Blog) writePage(file, tmpl string, page Page) error {
	var buf bytes.Buffer
	if err := b.theme.templates.ExecuteTemplate(&buf, tmpl, page); err != nil {
		return fmt.Errorf("executing template %s: %w", tmpl, err)
	}
	if err := os.WriteFile(file, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", file, err)
	}
	b.log.WithField("file", file).Debug("wrote page")
	return nil
}

func pageCount(posts, limit int) int {
	pages := posts / limit
	if posts%limit != 0 {
		pages++
	}
	return pages
}

// pageNames returns the file name of page n out of pages along with the
// names of its neighbours, empty at either end.
func pageNames(n, pages int) (name, previous, next string) {
	name = firstPageName
	if n > 0 {
		name = fmt.Sprintf("page%d.html", n)
	}

	switch n {
	case 0:
	case 1:
		previous = firstPageName
	default:
		previous = fmt.Sprintf("page%d.html", n-1)
	}

	if n != pages-1 {
		next = fmt.Sprintf("page%d.html", n+1)
	}
	return name, previous, next
}
