// Package config defines the enumerated configuration surface of the
// driver (spec.md §6) and binds it onto command-line flags the way the
// teacher's backend Options structs bind onto "config:" struct tags,
// except here the tags feed pflag directly since this repository has a
// single remote type rather than rclone's pluggable backend registry.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/pflag"
)

// SSLMode selects how (and whether) the control/data connections are
// protected with TLS.
type SSLMode string

// SSL modes, mirroring curlftpfs's CURLFTPSSL_* levels.
const (
	SSLNone    SSLMode = "none"
	SSLTry     SSLMode = "try"
	SSLControl SSLMode = "control"
	SSLAll     SSLMode = "all"
)

// FileMethod names a file addressing method: CWD-ing into the parent
// directory once per session (single-cwd) or changing directory on
// every single request (multi-cwd), matching curlftpfs's
// CURLOPT_FTP_FILEMETHOD knob. The value is parsed and stored only;
// internal/ftpwire never issues CWD and always sends full paths.
type FileMethod string

// File addressing methods.
const (
	FileMethodSingleCWD FileMethod = "single-cwd"
	FileMethodMultiCWD  FileMethod = "multi-cwd"
)

// ProxyType selects the proxy protocol used to reach the FTP host.
type ProxyType string

// Proxy types.
const (
	ProxyNone   ProxyType = ""
	ProxyHTTP   ProxyType = "http"
	ProxySOCKS4 ProxyType = "socks4"
	ProxySOCKS5 ProxyType = "socks5"
)

// ProxyAuth selects the authentication scheme presented to the proxy.
type ProxyAuth string

// Proxy auth schemes.
const (
	ProxyAuthAny    ProxyAuth = "any"
	ProxyAuthBasic  ProxyAuth = "basic"
	ProxyAuthDigest ProxyAuth = "digest"
	ProxyAuthNTLM   ProxyAuth = "ntlm"
)

// IPResolve constrains which address family DNS resolution may return.
type IPResolve string

// Resolve modes.
const (
	IPResolveAuto IPResolve = "auto"
	IPResolveV4   IPResolve = "v4"
	IPResolveV6   IPResolve = "v6"
)

// Options is the full configuration surface from spec.md §6. The
// driver reads Host, User, Pass, Interface, ConnectTimeout,
// TCPNoDelay, SkipPasvIP, SSL (only to pick the default port),
// TryUTF8, ListCommand, BlockSize, Verbose, the low-speed watchdog
// fields and ShrinkCap; every other field is parsed and stored so the
// CLI surface is complete, the same way curlftpfs accepted every
// libcurl knob up front even though only a subset mattered for any
// given server.
type Options struct {
	// Connection
	Host           string        `flag:"host"`
	User           string        `flag:"user"`
	Pass           string        `flag:"pass"`
	NetrcOptional  bool          `flag:"netrc-optional"`
	Interface      string        `flag:"interface"`
	ConnectTimeout time.Duration `flag:"connect-timeout"`

	// Transport
	DisableEPSV  bool       `flag:"disable-epsv"`
	DisableEPRT  bool       `flag:"disable-eprt"`
	SkipPasvIP   bool       `flag:"skip-pasv-ip"`
	FTPPort      string     `flag:"ftp-port"`
	TCPNoDelay   bool       `flag:"tcp-nodelay"`
	FileMethod   FileMethod `flag:"file-method"`

	// Security
	SSL             SSLMode   `flag:"ssl"`
	ClientCert      string    `flag:"cert"`
	ClientCertType  string    `flag:"cert-type"`
	ClientKey       string    `flag:"key"`
	ClientKeyType   string    `flag:"key-type"`
	KeyPassword     string    `flag:"key-password"`
	SSLEngine       string    `flag:"ssl-engine"`
	VerifyPeer      bool      `flag:"verify-peer"`
	VerifyHost      bool      `flag:"verify-host"`
	CAFile          string    `flag:"cacert"`
	CAPath          string    `flag:"capath"`
	CipherList      string    `flag:"ciphers"`
	SSLVersion      string    `flag:"ssl-version"`
	KerberosLevel   string    `flag:"krb-level"`
	IPResolve       IPResolve `flag:"ip-resolve"`

	// Proxy
	ProxyURL  string    `flag:"proxy"`
	ProxyType ProxyType `flag:"proxy-type"`
	ProxyTunnel bool    `flag:"proxy-tunnel"`
	ProxyAuth ProxyAuth `flag:"proxy-auth"`
	ProxyUser string    `flag:"proxy-user"`

	// Listing
	ListCommand string `flag:"list-command"`
	TryUTF8     bool   `flag:"utf8"`
	Codepage    string `flag:"codepage"`
	IOCharset   string `flag:"io-charset"`
	SafeNobody  bool   `flag:"safe-nobody"`

	// Local
	BlockSize uint64 `flag:"block-size"`
	Verbose   bool   `flag:"verbose"`

	// Write-side watchdog (spec.md §5 "low-speed watchdog")
	LowSpeedLimit int64         `flag:"low-speed-limit"`
	LowSpeedTime  time.Duration `flag:"low-speed-time"`

	// ShrinkCap is the soft cap on the read-side sliding window
	// (spec.md §4.2 step 6); exposed for tests, not normally tuned.
	ShrinkCap int
}

// DefaultOptions returns the option set curlftpfs itself defaults to:
// passive mode, EPSV/EPRT enabled, 300KiB shrink cap, a one-byte-per-
// second low-speed watchdog after 60 seconds idle.
func DefaultOptions() *Options {
	return &Options{
		ConnectTimeout: 30 * time.Second,
		FileMethod:     FileMethodMultiCWD,
		SSL:            SSLNone,
		VerifyPeer:     true,
		VerifyHost:     true,
		IPResolve:      IPResolveAuto,
		ListCommand:    "LIST -a",
		BlockSize:      1024,
		LowSpeedLimit:  1,
		LowSpeedTime:   60 * time.Second,
		ShrinkCap:      300 * 1024,
	}
}

// stringEnumVar adapts one of this package's string-based enum types
// (SSLMode, FileMethod, ProxyType, ProxyAuth, IPResolve) to
// pflag.Value, the standard escape hatch pflag gives callers binding a
// type it has no dedicated *Var method for.
type stringEnumVar struct {
	get func() string
	set func(string)
}

func (v *stringEnumVar) String() string     { return v.get() }
func (v *stringEnumVar) Set(s string) error { v.set(s); return nil }
func (v *stringEnumVar) Type() string       { return "string" }

// BindFlags registers the option surface on fs, the way the teacher's
// root command registers backend options via pflag in cmd/cmd.go. Call
// Validate after the flags are parsed to check derived fields.
func BindFlags(fs *pflag.FlagSet, o *Options) {
	fs.StringVar(&o.Host, "host", o.Host, "FTP host to connect to, e.g. ftp.example.com[:port]")
	fs.StringVar(&o.User, "user", o.User, "FTP username")
	fs.StringVar(&o.Pass, "pass", o.Pass, "FTP password (obscured recommended over plaintext flags)")
	fs.BoolVar(&o.NetrcOptional, "netrc-optional", o.NetrcOptional, "allow falling back to ~/.netrc for credentials")
	fs.StringVar(&o.Interface, "interface", o.Interface, "bind outbound connections to this local interface/address")
	fs.DurationVar(&o.ConnectTimeout, "connect-timeout", o.ConnectTimeout, "timeout for the initial control connection")

	fs.BoolVar(&o.DisableEPSV, "disable-epsv", o.DisableEPSV, "do not use EPSV even if the server advertises it")
	fs.BoolVar(&o.DisableEPRT, "disable-eprt", o.DisableEPRT, "do not use EPRT even if the server advertises it")
	fs.BoolVar(&o.SkipPasvIP, "skip-pasv-ip", o.SkipPasvIP, "ignore the IP address PASV returns, reuse the control connection's")
	fs.StringVar(&o.FTPPort, "ftp-port", o.FTPPort, "explicit address/interface for active mode PORT")
	fs.BoolVar(&o.TCPNoDelay, "tcp-nodelay", o.TCPNoDelay, "set TCP_NODELAY on data connections")
	fs.Var(&stringEnumVar{
		get: func() string { return string(o.FileMethod) },
		set: func(s string) { o.FileMethod = FileMethod(s) },
	}, "file-method", "how to address files: single-cwd or multi-cwd")

	fs.Var(&stringEnumVar{
		get: func() string { return string(o.SSL) },
		set: func(s string) { o.SSL = SSLMode(s) },
	}, "ssl", "TLS level: none, try, control, or all")
	fs.StringVar(&o.ClientCert, "cert", o.ClientCert, "client certificate file")
	fs.StringVar(&o.ClientCertType, "cert-type", o.ClientCertType, "client certificate file type (PEM/DER)")
	fs.StringVar(&o.ClientKey, "key", o.ClientKey, "client private key file")
	fs.StringVar(&o.ClientKeyType, "key-type", o.ClientKeyType, "client private key file type (PEM/DER)")
	fs.StringVar(&o.KeyPassword, "key-password", o.KeyPassword, "password for the client private key")
	fs.StringVar(&o.SSLEngine, "ssl-engine", o.SSLEngine, "crypto engine to use for client-side operations")
	fs.BoolVar(&o.VerifyPeer, "verify-peer", o.VerifyPeer, "verify the server's TLS certificate")
	fs.BoolVar(&o.VerifyHost, "verify-host", o.VerifyHost, "verify the server certificate's hostname")
	fs.StringVar(&o.CAFile, "cacert", o.CAFile, "CA bundle file to verify the server certificate against")
	fs.StringVar(&o.CAPath, "capath", o.CAPath, "directory holding CA certificates to verify against")
	fs.StringVar(&o.CipherList, "ciphers", o.CipherList, "TLS cipher list")
	fs.StringVar(&o.SSLVersion, "ssl-version", o.SSLVersion, "TLS version to negotiate")
	fs.StringVar(&o.KerberosLevel, "krb-level", o.KerberosLevel, "kerberos security level (clear/safe/confidential/private)")
	fs.Var(&stringEnumVar{
		get: func() string { return string(o.IPResolve) },
		set: func(s string) { o.IPResolve = IPResolve(s) },
	}, "ip-resolve", "constrain DNS resolution: auto, v4, or v6")

	fs.StringVar(&o.ProxyURL, "proxy", o.ProxyURL, "proxy URL to reach the FTP host through")
	fs.Var(&stringEnumVar{
		get: func() string { return string(o.ProxyType) },
		set: func(s string) { o.ProxyType = ProxyType(s) },
	}, "proxy-type", "proxy protocol: http, socks4, or socks5")
	fs.BoolVar(&o.ProxyTunnel, "proxy-tunnel", o.ProxyTunnel, "tunnel through an HTTP proxy rather than have it relay")
	fs.Var(&stringEnumVar{
		get: func() string { return string(o.ProxyAuth) },
		set: func(s string) { o.ProxyAuth = ProxyAuth(s) },
	}, "proxy-auth", "proxy auth scheme: any, basic, digest, or ntlm")
	fs.StringVar(&o.ProxyUser, "proxy-user", o.ProxyUser, "proxy username")

	fs.BoolVar(&o.TryUTF8, "utf8", o.TryUTF8, "send OPTS UTF8 ON before every request")
	fs.StringVar(&o.Codepage, "codepage", o.Codepage, "codepage to assume for non-UTF8 listings")
	fs.StringVar(&o.IOCharset, "io-charset", o.IOCharset, "charset to convert codepage listings to")
	fs.StringVar(&o.ListCommand, "list-command", o.ListCommand, "override the listing command (default LIST -a)")
	fs.BoolVar(&o.SafeNobody, "safe-nobody", o.SafeNobody, "use NOBODY probes that don't confuse picky servers")

	fs.Uint64Var(&o.BlockSize, "block-size", o.BlockSize, "block size reported by statfs")
	fs.BoolVar(&o.Verbose, "verbose", o.Verbose, "log protocol chatter at debug level")

	fs.Int64Var(&o.LowSpeedLimit, "low-speed-limit", o.LowSpeedLimit, "abort an upload below this many bytes/sec...")
	fs.DurationVar(&o.LowSpeedTime, "low-speed-time", o.LowSpeedTime, "...for this long")
}

// Validate checks for combinations the dial layer cannot reconcile.
func (o *Options) Validate() error {
	if o.Host == "" {
		return fmt.Errorf("host is required")
	}
	if o.SSL != SSLNone && o.SSL != SSLTry && o.SSL != SSLControl && o.SSL != SSLAll {
		return fmt.Errorf("invalid ssl mode %q", o.SSL)
	}
	return nil
}
