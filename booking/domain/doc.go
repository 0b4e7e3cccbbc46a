// Package domain define contratos e tipos de domínio para a reserva de vagas de visita.
//
// Este pacote não depende de net/http nem de implementações concretas de armazenamento.
// A regra que importa: para todo recurso R, count(reservas de R) <= R.Capacity, sempre.
package domain
