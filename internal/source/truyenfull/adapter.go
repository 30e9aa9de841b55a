// Package truyenfull parses truyenfull-style story, chapter-list and chapter
// pages with goquery selectors.
package truyenfull

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/story-crawler/internal/crawler"
	"github.com/JakeFAU/story-crawler/internal/textnorm"
)

// Name identifies this adapter in logs and metrics.
const Name = "truyenfull"

const nextPageLabel = "Trang tiếp"

// Adapter implements crawler.SourceAdapter for truyenfull markup.
type Adapter struct {
	baseURL string
}

var _ crawler.SourceAdapter = (*Adapter)(nil)

// New returns an Adapter resolving relative links against baseURL.
func New(baseURL string) *Adapter {
	return &Adapter{baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/")}
}

// Name returns the adapter name.
func (a *Adapter) Name() string {
	return Name
}

// ParseStoryInfo extracts story metadata from a story landing page.
func (a *Adapter) ParseStoryInfo(html string) crawler.StorySourceInfo {
	doc, ok := parse(html)
	if !ok {
		return crawler.StorySourceInfo{}
	}
	info := crawler.StorySourceInfo{
		Name:   text(doc.Find(".title").First()),
		Author: text(doc.Find(`.info a[itemprop="author"]`).First()),
		Image:  a.absolute(attr(doc.Find(".book img").First(), "src")),
	}
	if desc, err := doc.Find(".desc-text").First().Html(); err == nil {
		info.Description = strings.TrimSpace(desc)
	}
	info.Status = text(doc.Find(".info .text-success").First())
	if info.Status == "" {
		info.Status = text(doc.Find(".info .text-primary").First())
	}
	doc.Find(`.info a[itemprop="genre"]`).Each(func(_ int, s *goquery.Selection) {
		if genre := text(s); genre != "" {
			info.Categories = append(info.Categories, genre)
		}
	})
	return info
}

// ParseChapterListPage extracts the chapter stubs of one list page and
// whether the pagination offers a next page.
func (a *Adapter) ParseChapterListPage(html string) crawler.ChapterListPage {
	doc, ok := parse(html)
	if !ok {
		return crawler.ChapterListPage{}
	}
	var page crawler.ChapterListPage
	doc.Find(".list-chapter li a").Each(func(_ int, s *goquery.Selection) {
		href := attr(s, "href")
		title := text(s)
		if href == "" || title == "" {
			return
		}
		stub := crawler.ChapterStub{Title: title, URL: a.absolute(href)}
		if n, ok := textnorm.ParseChapterNumber(title); ok {
			stub.Number = crawler.IntPtr(n)
		}
		page.Stubs = append(page.Stubs, stub)
	})
	page.HasNext = hasNextPage(doc)
	return page
}

func hasNextPage(doc *goquery.Document) bool {
	labelled := doc.Find("ul.pagination li a").FilterFunction(func(_ int, s *goquery.Selection) bool {
		return strings.Contains(s.Text(), nextPageLabel)
	})
	if labelled.Length() > 0 {
		return true
	}
	return doc.Find("ul.pagination li.active").First().Next().Find("a").Length() > 0
}

// ParseChapterContent extracts the chapter heading and body HTML with ad blocks removed.
func (a *Adapter) ParseChapterContent(html string) crawler.ChapterContent {
	doc, ok := parse(html)
	if !ok {
		return crawler.ChapterContent{}
	}
	content := crawler.ChapterContent{Title: text(doc.Find(".chapter-title").First())}
	body := doc.Find(".chapter-c").First()
	body.Find(".ads-holder, .ads-chapter").Remove()
	if h, err := body.Html(); err == nil {
		content.Content = strings.TrimSpace(h)
	}
	return content
}

// ListPageURL returns the chapter-list page URL: the story URL itself for
// page 1 and "<story>/trang-N/#list-chapter" afterwards.
func (a *Adapter) ListPageURL(storyURL string, page int) string {
	base := crawler.EnsureTrailingSlash(storyURL)
	if page <= 1 {
		return base
	}
	return fmt.Sprintf("%strang-%d/#list-chapter", base, page)
}

func (a *Adapter) absolute(ref string) string {
	if ref == "" || a.baseURL == "" {
		return ref
	}
	return crawler.AbsoluteURL(a.baseURL+"/", ref)
}

func parse(html string) (*goquery.Document, bool) {
	if strings.TrimSpace(html) == "" {
		return nil, false
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, false
	}
	return doc, true
}

func text(s *goquery.Selection) string {
	return strings.TrimSpace(s.Text())
}

func attr(s *goquery.Selection, name string) string {
	v, _ := s.Attr(name)
	return strings.TrimSpace(v)
}
