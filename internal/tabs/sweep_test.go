package tabs_test

import (
	"context"
	"errors"
	"testing"

	"github.com/dgnsrekt/booktabs/internal/books"
	"github.com/dgnsrekt/booktabs/internal/tabs"
	"github.com/dgnsrekt/booktabs/internal/tabs/tabstest"
)

func TestCloseAllSweepsBookTabs(t *testing.T) {
	b := tabstest.New(
		hostURL,
		"https://a.example.com/x",
		"https://b.example.com/",
		"https://news.example.org/",
		"https://news.example.org/?r=c.example.com",
		"https://a.example.com/active",
		"http://a.example.com/plain",
	)
	b.Activate(5)

	res := tabs.NewSweeper(b, "odds.example.com").CloseAll(context.Background(), groupMap())

	assertURLs(t, b,
		hostURL,
		"https://news.example.org/",
		"https://a.example.com/active",
		"http://a.example.com/plain",
	)
	if res.Closed != 3 || res.Failed != 0 {
		t.Fatalf("Result = %+v", res)
	}
}

func TestCloseAllNeverClosesHostSite(t *testing.T) {
	m := groupMap()
	m.Set("Host", books.MustBookDetail("H", "https://odds.example.com/"))
	b := tabstest.New(hostURL, "https://www.odds.example.com/other", "https://c.example.com/")

	tabs.NewSweeper(b, "odds.example.com").CloseAll(context.Background(), m)

	assertURLs(t, b, hostURL, "https://www.odds.example.com/other")
}

func TestCloseAllKeepsActiveTab(t *testing.T) {
	b := tabstest.New("https://c.example.com/")
	b.Activate(0)
	res := tabs.NewSweeper(b, "").CloseAll(context.Background(), groupMap())
	if res.Closed != 0 || len(b.URLs()) != 1 {
		t.Fatalf("active tab closed: %+v", res)
	}
}

func TestCloseAllLogsAndContinuesOnFailure(t *testing.T) {
	b := tabstest.New("https://a.example.com/", "https://b.example.com/")
	b.Errs["remove"] = errors.New("tab busy")
	res := tabs.NewSweeper(b, "").CloseAll(context.Background(), groupMap())
	if res.Failed != 2 || res.Closed != 0 {
		t.Fatalf("Result = %+v", res)
	}
}

func TestCloseAllEmptyMap(t *testing.T) {
	b := tabstest.New("https://a.example.com/")
	res := tabs.NewSweeper(b, "").CloseAll(context.Background(), books.NewMap())
	if res != (tabs.Result{}) || len(b.Ops) != 0 {
		t.Fatalf("Result = %+v, ops = %+v", res, b.Ops)
	}
}
