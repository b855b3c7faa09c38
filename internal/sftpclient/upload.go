package sftpclient

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"

	"madgrades-sync/internal/config"
)

type Config struct {
	Host                  string
	Port                  int
	User                  string
	Pass                  string
	RemoteDir             string
	KnownHosts            string
	InsecureIgnoreHostKey bool
}

func FromConfig(c config.Config) Config {
	return Config{
		Host:                  c.SFTPHost,
		Port:                  c.SFTPPort,
		User:                  c.SFTPUser,
		Pass:                  c.SFTPPass,
		RemoteDir:             c.SFTPDir,
		KnownHosts:            c.SFTPKnownHosts,
		InsecureIgnoreHostKey: c.SFTPInsecureIgnoreHostKey,
	}
}

func (c Config) withDefaults() (Config, error) {
	if c.Host == "" || c.User == "" || c.Pass == "" {
		return c, errors.New("sftp: missing env SFTP_HOST / SFTP_USER / SFTP_PASS")
	}
	if c.Port <= 0 {
		c.Port = 22
	}
	if c.RemoteDir == "" {
		c.RemoteDir = "/"
	}
	return c, nil
}

func (c Config) hostKeyCallback() (ssh.HostKeyCallback, error) {
	if c.InsecureIgnoreHostKey {
		return ssh.InsecureIgnoreHostKey(), nil
	}
	file := c.KnownHosts
	if file == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("sftp: locate known_hosts: %w", err)
		}
		file = filepath.Join(home, ".ssh", "known_hosts")
	}
	cb, err := knownhosts.New(file)
	if err != nil {
		return nil, fmt.Errorf("sftp: load known_hosts %s: %w", file, err)
	}
	return cb, nil
}

// UploadFiles copies every local file into the remote dir over one session.
// Remote names are the local base names.
func UploadFiles(ctx context.Context, cfg Config, localPaths ...string) error {
	if len(localPaths) == 0 {
		return nil
	}
	cfg, err := cfg.withDefaults()
	if err != nil {
		return err
	}
	cb, err := cfg.hostKeyCallback()
	if err != nil {
		return err
	}

	sshCfg := &ssh.ClientConfig{
		User:            cfg.User,
		Auth:            []ssh.AuthMethod{ssh.Password(cfg.Pass)},
		HostKeyCallback: cb,
		Timeout:         20 * time.Second,
	}
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)

	type dialRes struct {
		client *ssh.Client
		err    error
	}
	ch := make(chan dialRes, 1)
	go func() {
		c, err := ssh.Dial("tcp", addr, sshCfg)
		ch <- dialRes{client: c, err: err}
	}()

	var sshClient *ssh.Client
	select {
	case <-ctx.Done():
		return fmt.Errorf("sftp: dial canceled: %w", ctx.Err())
	case r := <-ch:
		if r.err != nil {
			return fmt.Errorf("sftp: dial error: %w", r.err)
		}
		sshClient = r.client
	}
	defer sshClient.Close()

	sftpCli, err := sftp.NewClient(sshClient)
	if err != nil {
		return fmt.Errorf("sftp: new client: %w", err)
	}
	defer sftpCli.Close()

	return upload(sftpCli, cfg.RemoteDir, localPaths)
}

func upload(cli *sftp.Client, remoteDir string, localPaths []string) error {
	if err := cli.MkdirAll(remoteDir); err != nil {
		return fmt.Errorf("sftp: mkdir %s: %w", remoteDir, err)
	}
	for _, p := range localPaths {
		if err := uploadOne(cli, p, path.Join(remoteDir, filepath.Base(p))); err != nil {
			return err
		}
	}
	return nil
}

func uploadOne(cli *sftp.Client, localPath, remotePath string) error {
	src, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("sftp: open local file: %w", err)
	}
	defer src.Close()

	dst, err := cli.Create(remotePath)
	if err != nil {
		return fmt.Errorf("sftp: create remote file %s: %w", remotePath, err)
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		return fmt.Errorf("sftp: upload %s: %w", remotePath, err)
	}
	return dst.Close()
}
