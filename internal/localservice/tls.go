package localservice

import (
	"crypto/tls"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

var (
	// ErrMissingMaterial 私钥或证书文件不存在
	ErrMissingMaterial = errors.New("tls material missing")
	// ErrBadMaterial 私钥或证书无法解析，或两者不匹配
	ErrBadMaterial = errors.New("tls material malformed")
)

// LoadTLSConfig 从资源目录读取 PKCS#8 私钥与证书。任何一项缺失或损坏都返回错误，
// 调用方不得退回明文监听。
func LoadTLSConfig(dir, keyFile, certFile string) (*tls.Config, error) {
	keyPEM, err := readAsset(dir, keyFile)
	if err != nil {
		return nil, err
	}
	certPEM, err := readAsset(dir, certFile)
	if err != nil {
		return nil, err
	}
	cert, err := ParseKeyPair(keyPEM, certPEM)
	if err != nil {
		return nil, err
	}
	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
	}, nil
}

// ParseKeyPair 只接受未加密的 PKCS#8 "PRIVATE KEY" 块
func ParseKeyPair(keyPEM, certPEM []byte) (tls.Certificate, error) {
	block, _ := pem.Decode(keyPEM)
	if block == nil || block.Type != "PRIVATE KEY" {
		return tls.Certificate{}, fmt.Errorf("%w: no PRIVATE KEY section", ErrBadMaterial)
	}
	if _, err := x509.ParsePKCS8PrivateKey(block.Bytes); err != nil {
		return tls.Certificate{}, fmt.Errorf("%w: %v", ErrBadMaterial, err)
	}
	cert, err := tls.X509KeyPair(certPEM, keyPEM)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("%w: %v", ErrBadMaterial, err)
	}
	return cert, nil
}

func readAsset(dir, name string) ([]byte, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: empty file name", ErrMissingMaterial)
	}
	path := name
	if !filepath.IsAbs(name) {
		path = filepath.Join(dir, name)
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrMissingMaterial, path)
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return data, nil
}
