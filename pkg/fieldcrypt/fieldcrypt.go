package fieldcrypt

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
)

// KeySize 是AES-256要求的密钥长度（字节）。
const KeySize = 32

// DecryptError 表示一次解密失败：密文格式损坏、长度错误、
// 填充非法，或者使用了与加密时不匹配的密钥。
// 它必须与"字段为空"严格区分开，调用方绝不能把它当作空字符串处理。
type DecryptError struct {
	cause error
}

func (e *DecryptError) Error() string {
	return fmt.Sprintf("字段解密失败: %v", e.cause)
}

func (e *DecryptError) Unwrap() error {
	return e.cause
}

// IsDecryptError 判断一个错误是否为解密错误。
func IsDecryptError(err error) bool {
	var de *DecryptError
	return errors.As(err, &de)
}

// DeriveKey 从配置的口令字符串派生出32字节的AES-256密钥。
// 派生方式是右侧补零并截断到32字节，与既有数据库中密文的密钥保持一致，
// 因此不能改成更强的KDF，否则历史密文将全部无法解密。
func DeriveKey(secret string) []byte {
	key := make([]byte, KeySize)
	copy(key, []byte(secret))
	return key
}

// Encrypt 使用AES-256-CBC加密明文，返回base64(IV‖密文)。
// 每次调用都会从crypto/rand生成全新的16字节IV，
// 同一明文两次加密必然得到不同的输出。
// 空字符串不经过加密直接返回空，与历史数据的约定一致。
func Encrypt(plaintext string, key []byte) (string, error) {
	if plaintext == "" {
		return "", nil
	}
	if len(key) != KeySize {
		return "", fmt.Errorf("密钥长度必须为%d字节", KeySize)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return "", fmt.Errorf("无法创建AES加密器: %w", err)
	}

	// 1. 生成随机IV。随机源失败属于致命错误，不做重试。
	iv := make([]byte, aes.BlockSize)
	if _, err := rand.Read(iv); err != nil {
		return "", fmt.Errorf("无法生成加密IV: %w", err)
	}

	// 2. PKCS7填充到块长度的整数倍
	padded := pkcs7Pad([]byte(plaintext), aes.BlockSize)

	// 3. CBC模式加密
	ciphertext := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(ciphertext, padded)

	// 4. 拼接IV和密文，整体做base64编码以便存入文本列
	blob := make([]byte, 0, len(iv)+len(ciphertext))
	blob = append(blob, iv...)
	blob = append(blob, ciphertext...)
	return base64.StdEncoding.EncodeToString(blob), nil
}

// Decrypt 还原Encrypt的输出。任何格式问题或密钥不匹配都返回*DecryptError，
// 绝不静默返回空字符串。空输入视为"字段为空"，直接返回空。
func Decrypt(blob string, key []byte) (string, error) {
	if blob == "" {
		return "", nil
	}
	if len(key) != KeySize {
		return "", fmt.Errorf("密钥长度必须为%d字节", KeySize)
	}

	raw, err := base64.StdEncoding.DecodeString(blob)
	if err != nil {
		return "", &DecryptError{cause: fmt.Errorf("base64解码失败: %w", err)}
	}
	if len(raw) < aes.BlockSize || (len(raw)-aes.BlockSize)%aes.BlockSize != 0 || len(raw) == aes.BlockSize {
		return "", &DecryptError{cause: errors.New("密文长度非法")}
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return "", fmt.Errorf("无法创建AES解密器: %w", err)
	}

	iv := raw[:aes.BlockSize]
	ciphertext := raw[aes.BlockSize:]

	padded := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(padded, ciphertext)

	plaintext, err := pkcs7Unpad(padded, aes.BlockSize)
	if err != nil {
		// 填充非法：通常意味着密文损坏，或密钥已轮换但数据未重新加密
		return "", &DecryptError{cause: err}
	}
	return string(plaintext), nil
}

// pkcs7Pad 对数据做PKCS7填充。
func pkcs7Pad(data []byte, blockSize int) []byte {
	padLen := blockSize - len(data)%blockSize
	return append(data, bytes.Repeat([]byte{byte(padLen)}, padLen)...)
}

// pkcs7Unpad 校验并去除PKCS7填充。
func pkcs7Unpad(data []byte, blockSize int) ([]byte, error) {
	if len(data) == 0 || len(data)%blockSize != 0 {
		return nil, errors.New("待去填充数据长度非法")
	}
	padLen := int(data[len(data)-1])
	if padLen == 0 || padLen > blockSize || padLen > len(data) {
		return nil, errors.New("PKCS7填充字节非法")
	}
	for _, b := range data[len(data)-padLen:] {
		if int(b) != padLen {
			return nil, errors.New("PKCS7填充内容非法")
		}
	}
	return data[:len(data)-padLen], nil
}
