package auth

import (
	"sync"

	"golang.org/x/oauth2"
)

// persistingTokenSource 缓存当前 token，刷新出新的 access token 时回调保存
type persistingTokenSource struct {
	mu      sync.Mutex
	base    oauth2.TokenSource
	current *oauth2.Token
	onNew   func(*oauth2.Token)
}

func newPersistingTokenSource(base oauth2.TokenSource, current *oauth2.Token, onNew func(*oauth2.Token)) *persistingTokenSource {
	return &persistingTokenSource{base: base, current: current, onNew: onNew}
}

func (p *persistingTokenSource) Token() (*oauth2.Token, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.current != nil && p.current.Valid() {
		return p.current, nil
	}

	tok, err := p.base.Token()
	if err != nil {
		return nil, err
	}
	if p.current == nil || tok.AccessToken != p.current.AccessToken {
		p.onNew(tok)
	}
	p.current = tok
	return tok, nil
}
