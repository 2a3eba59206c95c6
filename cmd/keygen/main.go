package main

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"flag"
	"fmt"
	"os"
)

// keygen 生成 Badger secret 库使用的 32 字节加密密钥
func main() {
	b64 := flag.Bool("base64", false, "print base64 instead of hex")
	flag.Parse()

	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err.Error())
		os.Exit(1)
	}
	if *b64 {
		fmt.Println(base64.StdEncoding.EncodeToString(key))
		return
	}
	fmt.Println(hex.EncodeToString(key))
}
