package main

import (
	"html/template"
	"time"
)

// Post is a single Markdown article and everything needed to render it.
type Post struct {
	// Lower-cased file stem. Unique across the site.
	Name string
	// Path of the post relative to the site root.
	URL string
	// Category (content sub-directory) the post lives in.
	Category string
	// Markdown source file.
	SourcePath string
	// Directory copied next to the rendered post, empty if there is none.
	AssetsDir string

	Title string
	// Date as written in the metadata header.
	Date string
	// Date parsed with the configured date format.
	Published   time.Time
	Author      string
	Description string
	MainImage   string
	// Stylesheets shipped by the theme.
	GlobalStyles []string
	// Stylesheets shipped in the post asset directory.
	LocalStyles []string
	// Rendered post body.
	Article template.HTML
	// Complete metadata header, keys lower-cased.
	Meta map[string][]string
}

// Page is the data every theme template is executed with.
type Page struct {
	Copyright   string
	WebsiteName string
	// Relative path from the rendered page back to the site root.
	BaseURL    string
	Categories []string
	// Category the page belongs to. "Home" for index pages.
	PageCategory string

	Author      string
	Title       string
	Description string

	// Pagination links, empty when there is no such page.
	PreviousPage string
	NextPage     string

	// Set on post pages.
	Post *Post
	// Set on category and home pages, newest first.
	Posts []*Post
}

// Theme templates.
const (
	postTemplate     = "post.html"
	categoryTemplate = "category.html"
	homeTemplate     = "home.html"
)

const (
	// Pseudo category holding every post, used for the home pages.
	allPostsCategory = "all_posts"
	homePageCategory = "Home"

	firstPageName = "index.html"
	outputDirPerm = 0o755
)
