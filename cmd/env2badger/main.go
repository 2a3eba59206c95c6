package main

import (
	"flag"
	"fmt"
	"os"
	"slices"
	"strings"

	"github.com/joho/godotenv"

	"github.com/betbot/astergate/pkg/config"
	"github.com/betbot/astergate/pkg/secretstore"
)

func main() {
	var (
		inPath    = flag.String("in", ".env", "input .env file path")
		dbPath    = flag.String("badger", getenv("SECRET_DB", config.DefaultSecretDB), "badger secrets db path")
		secretKey = flag.String("secret-key", getenv("SECRET_KEY", ""), "badger encryption key (32 bytes base64/hex)")
		prefix    = flag.String("prefix", secretstore.DefaultPrefix, "key prefix inside badger")
		all       = flag.Bool("all", false, "import every entry instead of only ASTERDEX_PRIVATE_KEY/WEBHOOK_SECRET/API_KEY")
	)
	flag.Parse()

	keyBytes, err := secretstore.ParseKey(*secretKey)
	if err != nil {
		fatal(err)
	}
	if keyBytes == nil {
		fatal(fmt.Errorf("secret key is required: set SECRET_KEY or pass -secret-key (see cmd/keygen)"))
	}

	kv, err := godotenv.Read(*inPath)
	if err != nil {
		fatal(fmt.Errorf("read %s: %w", *inPath, err))
	}
	if !*all {
		kv = onlySecrets(kv)
	}
	if len(kv) == 0 {
		fatal(fmt.Errorf("%s 中没有可导入的项", *inPath))
	}

	ss, err := secretstore.Open(secretstore.OpenOptions{
		Path:          *dbPath,
		EncryptionKey: keyBytes,
	})
	if err != nil {
		fatal(err)
	}
	defer ss.Close()

	written, err := ss.Import(*prefix, kv)
	if err != nil {
		fatal(err)
	}

	fmt.Fprintf(os.Stderr, "已导入 %d 项到 badger：%s（前缀 %s）\n", written, *dbPath, *prefix)
}

func onlySecrets(kv map[string]string) map[string]string {
	keys := config.SecretKeys()
	out := make(map[string]string, len(keys))
	for k, v := range kv {
		if slices.Contains(keys, k) && strings.TrimSpace(v) != "" {
			out[k] = v
		}
	}
	return out
}

func getenv(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func fatal(err error) {
	fmt.Fprintln(os.Stderr, "error:", err.Error())
	os.Exit(1)
}
