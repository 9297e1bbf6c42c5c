package metadata

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/ipfs/go-cid"
	"github.com/multiformats/go-multihash"
)

const uriScheme = "ipfs://"

var (
	ErrNotFound  = errors.New("metadata: não encontrado")
	ErrImmutable = errors.New("metadata: conteúdo diverge do CID já gravado")
)

// CID calcula o CIDv1 (raw + sha2-256) dos bytes.
func CID(data []byte) (cid.Cid, error) {
	sum, err := multihash.Sum(data, multihash.SHA2_256, -1)
	if err != nil {
		return cid.Undef, err
	}
	return cid.NewCidV1(cid.Raw, sum), nil
}

// URI devolve o endereço ipfs:// dos bytes.
func URI(data []byte) (string, error) {
	id, err := CID(data)
	if err != nil {
		return "", fmt.Errorf("falha ao calcular CID: %w", err)
	}
	return uriScheme + id.String(), nil
}

// Store grava documentos por CID. Com root vazio, mantém tudo em memória.
// Gravar os mesmos bytes duas vezes é idempotente.
type Store struct {
	root string

	mu  sync.RWMutex
	mem map[string][]byte
}

// NewStore cria o armazenamento. O diretório é criado se necessário.
func NewStore(root string) (*Store, error) {
	if root != "" {
		if err := os.MkdirAll(root, 0o755); err != nil {
			return nil, fmt.Errorf("falha ao criar diretório de metadados: %w", err)
		}
	}
	return &Store{root: root, mem: make(map[string][]byte)}, nil
}

// Pin grava doc e devolve sua URI ipfs://.
func (s *Store) Pin(_ context.Context, doc []byte) (string, error) {
	id, err := CID(doc)
	if err != nil {
		return "", fmt.Errorf("falha ao calcular CID: %w", err)
	}
	key := id.String()

	if s.root == "" {
		s.mu.Lock()
		defer s.mu.Unlock()
		if existing, ok := s.mem[key]; ok && string(existing) != string(doc) {
			return "", ErrImmutable
		}
		s.mem[key] = append([]byte(nil), doc...)
		return uriScheme + key, nil
	}

	path := filepath.Join(s.root, key)
	if existing, err := os.ReadFile(path); err == nil {
		if string(existing) != string(doc) {
			return "", ErrImmutable
		}
		return uriScheme + key, nil
	}
	if err := os.WriteFile(path, doc, 0o444); err != nil {
		return "", fmt.Errorf("falha ao gravar metadados %s: %w", key, err)
	}
	return uriScheme + key, nil
}

// Get lê o documento de uma URI ipfs://.
func (s *Store) Get(_ context.Context, uri string) ([]byte, error) {
	id, err := cid.Decode(strings.TrimPrefix(uri, uriScheme))
	if err != nil {
		return nil, fmt.Errorf("URI de metadados inválida %q: %w", uri, err)
	}
	key := id.String()

	if s.root == "" {
		s.mu.RLock()
		defer s.mu.RUnlock()
		b, ok := s.mem[key]
		if !ok {
			return nil, ErrNotFound
		}
		return append([]byte(nil), b...), nil
	}

	b, err := os.ReadFile(filepath.Join(s.root, key))
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("falha ao ler metadados %s: %w", key, err)
	}
	return b, nil
}
