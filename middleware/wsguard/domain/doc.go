// Package domain define contratos e tipos de domínio para admissão de conexões
// WebSocket e telemetria de conexões/mensagens.
//
// Este pacote não depende de net/http, de gorilla/websocket nem de
// implementações concretas de store. A intenção é permitir testes de unidade
// puros e desacoplar as regras de admissão de detalhes de infraestrutura.
package domain
