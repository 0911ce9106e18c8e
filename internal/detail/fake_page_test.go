package detail

import (
	"context"
	"errors"
	"sync"
)

// fakePage serves canned storage and HTML per case number
type fakePage struct {
	mu        sync.Mutex
	current   string
	visited   []string
	storage   map[string]map[string]string
	html      map[string]string
	navErr    map[string]error
	visible   bool
	waitCalls int
	closed    bool
}

func newFakePage() *fakePage {
	return &fakePage{
		storage: map[string]map[string]string{},
		html:    map[string]string{},
		navErr:  map[string]error{},
		visible: true,
	}
}

func (p *fakePage) caseNo() string {
	no, _, _ := CaseIdentifiers(p.current)
	return no
}

func (p *fakePage) Navigate(ctx context.Context, url string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.visited = append(p.visited, url)
	p.current = url
	if err := p.navErr[p.caseNo()]; err != nil {
		return err
	}
	return ctx.Err()
}

func (p *fakePage) WaitVisible(ctx context.Context, selector string) error {
	p.mu.Lock()
	p.waitCalls++
	visible := p.visible
	p.mu.Unlock()
	if visible {
		return nil
	}
	<-ctx.Done()
	return ctx.Err()
}

func (p *fakePage) SessionStorage(ctx context.Context) (map[string]string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.storage[p.caseNo()], nil
}

func (p *fakePage) HTML(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	html, ok := p.html[p.caseNo()]
	if !ok {
		return "", errors.New("no html")
	}
	return html, nil
}

func (p *fakePage) URL(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current, nil
}

func (p *fakePage) Close() error {
	p.closed = true
	return nil
}
