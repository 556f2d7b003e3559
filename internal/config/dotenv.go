package config

import (
	"bufio"
	"errors"
	"os"
	"strings"
)

// LoadDotEnv 读取简单的 .env 文件格式并注入进程环境。
// 规则：
// - 忽略不存在的文件；
// - 跳过空行与以 # 开头的行；支持可选的前缀 "export "；
// - 仅按首个 '=' 分割；value 去首尾空白，成对的单/双引号被去除；
// - 双引号内的 \n \t \" \\ 作最小转义处理；
// - 空值与已存在的环境变量均不写入。
func LoadDotEnv(path string) error {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	defer f.Close()
	s := bufio.NewScanner(f)
	for s.Scan() {
		key, val, ok := parseDotEnvLine(s.Text())
		if !ok || val == "" {
			continue
		}
		if _, exists := os.LookupEnv(key); exists {
			continue
		}
		_ = os.Setenv(key, val)
	}
	return s.Err()
}

func parseDotEnvLine(line string) (string, string, bool) {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") {
		return "", "", false
	}
	line = strings.TrimSpace(strings.TrimPrefix(line, "export "))
	key, val, found := strings.Cut(line, "=")
	key = strings.TrimSpace(key)
	if !found || key == "" {
		return "", "", false
	}
	val = strings.TrimSpace(val)
	if len(val) >= 2 {
		q := val[0]
		if (q == '\'' || q == '"') && val[len(val)-1] == q {
			val = val[1 : len(val)-1]
			if q == '"' {
				val = strings.NewReplacer(`\n`, "\n", `\t`, "\t", `\r`, "\r", `\"`, `"`, `\\`, `\`).Replace(val)
			}
		}
	}
	return key, val, true
}
